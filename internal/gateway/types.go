package gateway

// SuccessCode is the response_code the gateway uses for an approved call.
const SuccessCode = "00"

// CreateRequest asks the gateway for a new QR payment code.
type CreateRequest struct {
	TxnID        string `json:"txn_id"`
	AmtInDollars string `json:"amt_in_dollars"`
	NotifyMobile int    `json:"notify_mobile"`
}

type CreateResponse struct {
	ResponseCode    string `json:"response_code"`
	TxnStatus       int    `json:"txn_status"`
	QRCode          string `json:"qr_code,omitempty"`
	TxnRetrievalRef string `json:"txn_retrieval_ref,omitempty"`
	// NetworkStatus is nil when the gateway omitted it.
	NetworkStatus *int   `json:"network_status,omitempty"`
	Instruction   string `json:"instruction,omitempty"`
}

// Succeeded reports whether the response carries a usable payment code.
func (r *CreateResponse) Succeeded() bool {
	return r.ResponseCode == SuccessCode && r.TxnStatus == 1 && r.QRCode != ""
}

// PayerInstruction returns the instruction only when the gateway marked the
// network as healthy; otherwise the text is not meant for the payer.
func (r *CreateResponse) PayerInstruction() string {
	if r.NetworkStatus != nil && *r.NetworkStatus == 0 {
		return r.Instruction
	}
	return ""
}

type QueryRequest struct {
	TxnRetrievalRef       string `json:"txn_retrieval_ref"`
	FrontendTimeoutStatus int    `json:"frontend_timeout_status"`
}

type QueryResponse struct {
	ResponseCode string `json:"response_code"`
	TxnStatus    int    `json:"txn_status"`
}

func (r *QueryResponse) Succeeded() bool {
	return r.ResponseCode == SuccessCode && r.TxnStatus == 1
}

// Envelope is the gateway's wrapper: {"result":{"data":{...}}}.
type Envelope[T any] struct {
	Result struct {
		Data *T `json:"data"`
	} `json:"result"`
}

// Wrap builds an envelope around data; the sandbox gateway uses it to answer.
func Wrap[T any](data T) Envelope[T] {
	var e Envelope[T]
	e.Result.Data = &data
	return e
}
