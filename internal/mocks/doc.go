// Package mocks provides centralized test doubles for the interfaces used
// throughout the application.
//
// Two styles are used, matching what each test needs:
//
//   - Fn-field mocks (MockDispatcher, MockExecutor, MockJWTService) whose
//     behavior is set per test by assigning functions, with call tracking
//     for verification.
//   - testify/mock based mocks (TestifyMock*) for store interfaces, where
//     expectations on arguments matter.
//
// Transactor wraps a real store.Transactor so that tests can replace
// individual stores inside a transaction, for example to inject a ledger
// failure into an admission cycle:
//
//	tx := &mocks.Transactor{
//	    Inner: sqlstore.NewTransactor(db, log),
//	    WrapFn: func(s store.Stores) store.Stores {
//	        s.Ledger = failingLedger
//	        return s
//	    },
//	}
package mocks
