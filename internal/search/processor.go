package search

import "github.com/hyperjump/pulpit/internal/models"

// ProcessQuery validates the request and resolves its k.
func ProcessQuery(query *models.QueryRequest, defaultK, maxK int) error {
	if err := query.Validate(defaultK, maxK); err != nil {
		return &InvalidRequestError{Err: err}
	}
	return nil
}
