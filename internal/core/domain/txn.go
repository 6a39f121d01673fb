package domain

// Transaction represents a blockchain transaction
type Transaction struct {
	Hash        string
	BlockNumber uint64
	Index       int
	From        string
	To          string
}

type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
)

// Receipt holds the execution outcome of a transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      TxStatus
	Logs        []Log
}
