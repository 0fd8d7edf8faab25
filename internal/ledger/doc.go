// Package ledger implements the credit ledger: the only code path that
// changes a user's credit balance.
//
// Every balance change is a single conditional update of the balance paired
// with an append to the credit history, performed in one transaction. A
// debit never drives the balance below zero, and for every user the sum of
// ledger amounts equals the live balance minus the opening balance.
package ledger
