package repositories

import "fmt"

// RepositoryError wraps storage failures with the operation that caused them
type RepositoryError struct {
	Operation string
	Err       error
	Message   string
}

func (e *RepositoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repository %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("repository %s failed: %s", e.Operation, e.Message)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a repository error for a failed operation
func NewRepositoryError(operation, message string, err error) *RepositoryError {
	return &RepositoryError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// NotFoundError indicates the requested entity does not exist or is not
// visible to the requesting user
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// NewNotFoundError creates a not-found error for an entity
func NewNotFoundError(entity string, id int) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// VectorIndexError wraps vector index failures
type VectorIndexError struct {
	Operation string
	Err       error
	Message   string
}

func (e *VectorIndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vector index %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("vector index %s failed: %s", e.Operation, e.Message)
}

func (e *VectorIndexError) Unwrap() error {
	return e.Err
}

// NewVectorIndexError creates a vector index error for a failed operation
func NewVectorIndexError(operation, message string, err error) *VectorIndexError {
	return &VectorIndexError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
