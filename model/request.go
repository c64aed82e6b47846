package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// RequestID identifies a single catalog request.
type RequestID struct {
	Value []byte
}

func GenerateRequestID() (*RequestID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	return &RequestID{Value: id[:]}, nil
}

func MustGenerateRequestID() *RequestID {
	id, err := GenerateRequestID()
	if err != nil {
		panic(fmt.Sprintf("failed to generate request id: %v", err))
	}

	return id
}

func RequestIDString(id *RequestID) string {
	if id == nil {
		return ""
	}
	return base58.Encode(id.Value)
}
