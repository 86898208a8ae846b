// Package middleware wraps persistence stores with encryption and masking.
package middleware

import "github.com/aretw0/appflow/pkg/persistence"

// Middleware allows wrapping a Store to add behavior.
type Middleware func(persistence.Store) persistence.Store

// Chain applies mws to store so that the first one sees calls first.
func Chain(store persistence.Store, mws ...Middleware) persistence.Store {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
