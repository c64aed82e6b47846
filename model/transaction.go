package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// TransactionID identifies a transaction delivered by a payment queue.
type TransactionID struct {
	Value []byte
}

func GenerateTransactionID() (*TransactionID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	return &TransactionID{Value: id[:]}, nil
}

func MustGenerateTransactionID() *TransactionID {
	id, err := GenerateTransactionID()
	if err != nil {
		panic(fmt.Sprintf("failed to generate transaction id: %v", err))
	}

	return id
}

func TransactionIDString(id *TransactionID) string {
	if id == nil {
		return ""
	}
	return base58.Encode(id.Value)
}

func TransactionIDFromString(s string) (*TransactionID, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	return &TransactionID{Value: decoded}, nil
}
