package domain

import "errors"

var (
	// ErrNotJoinable is returned when joining a started game is disabled.
	ErrNotJoinable = errors.New("game is not joinable")
	// ErrNotAnswering is returned when check is requested outside the answering state.
	ErrNotAnswering = errors.New("game is not in answering state")
	// ErrTooLate is returned when a submission targets a question that is no longer open.
	ErrTooLate = errors.New("question is no longer accepting answers")

	// ErrForbidden is returned when the acting user may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrGameNotFound indicates the game does not exist.
	ErrGameNotFound = errors.New("game not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question id or number is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrUnknownVariant indicates a submitted variant id is not part of the question.
	ErrUnknownVariant = errors.New("unknown variant")
	// ErrPlayerNotFound indicates the user has not joined the game.
	ErrPlayerNotFound = errors.New("player not found in game")
	// ErrUserNotFound indicates the user is unknown to the store.
	ErrUserNotFound = errors.New("user not found")

	// ErrConflict is a unique constraint violation surfaced by a store.
	ErrConflict = errors.New("conflict")
	// ErrInvalidQuiz is returned when quiz content breaks the question bank invariants.
	ErrInvalidQuiz = errors.New("invalid quiz")
)

// ErrorKind groups errors the way transports map them to responses.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindPermission  ErrorKind = "permission"
	KindNotFound    ErrorKind = "not_found"
	KindConsistency ErrorKind = "consistency"
	KindInternal    ErrorKind = "internal"
)

// Kind classifies err, following wrapped errors.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotJoinable), errors.Is(err, ErrNotAnswering),
		errors.Is(err, ErrTooLate), errors.Is(err, ErrInvalidQuiz):
		return KindValidation
	case errors.Is(err, ErrForbidden):
		return KindPermission
	case errors.Is(err, ErrGameNotFound), errors.Is(err, ErrQuizNotFound),
		errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrUnknownVariant),
		errors.Is(err, ErrPlayerNotFound), errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConsistency
	}
	return KindInternal
}
