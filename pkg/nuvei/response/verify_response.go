package response

type Verify struct {
	Transaction *Transaction `json:"transaction,omitempty"`
	ThreeDS     *ThreeDS     `json:"3ds,omitempty"`
}

func (v *Verify) IsValid() bool {
	return v.Transaction != nil
}

// Status returns the coarse transaction status, empty when absent.
func (v *Verify) Status() TransactionStatus {
	if v.Transaction == nil {
		return ""
	}
	return v.Transaction.Status
}

// StatusDetail returns the refined status code, -1 when absent.
func (v *Verify) StatusDetail() int {
	if v.Transaction == nil {
		return -1
	}
	return v.Transaction.StatusDetail
}

// BrowserResponse returns the 3DS continuation payload, if any.
func (v *Verify) BrowserResponse() *BrowserResponse {
	if v.ThreeDS == nil {
		return nil
	}
	return v.ThreeDS.BrowserResponse
}
