package state

// invoice.go is the per-transaction result of apply, grounded on §4.1
// step 7 ("the transaction's outcome is recorded as an invoice: Success,
// Failed{error}, distinct from the KindDatabase errors that abort the
// whole block import").

// Invoice is the recorded outcome of applying one transaction.
type Invoice struct {
	Success bool
	Error   error // non-nil iff !Success
}

func invoiceSuccess() Invoice { return Invoice{Success: true} }

func invoiceFailed(err error) Invoice { return Invoice{Success: false, Error: err} }
