package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"governance-api/domain"
	"governance-api/ingest"
	"governance-api/storage"
	"governance-api/workflow"
	"governance-api/workspace"
)

var (
	errUnauthorized   = errors.New("unauthorized")
	errInvalidBody    = errors.New("invalid body")
	errInvalidPos     = errors.New("invalid row position")
	errMissingFile    = errors.New("missing file")
	errNothingToUndo  = errors.New("nothing to undo")
	errStaleWorkspace = errors.New("workspace version does not match If-Match")
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorTable maps sentinel errors to responses.
var errorTable = []errorMapping{
	{errUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{errInvalidBody, http.StatusBadRequest, "Invalid request body"},
	{errInvalidPos, http.StatusBadRequest, "Invalid row position"},
	{errMissingFile, http.StatusBadRequest, "A document file is required"},
	{workspace.ErrRowOutOfRange, http.StatusBadRequest, "Row does not exist"},
	{workspace.ErrUnknownField, http.StatusBadRequest, "Unknown row field"},
	{domain.ErrInvalidDecision, http.StatusBadRequest, "Decision must be APPEND, UPDATE or SKIP"},
	{domain.ErrUnknownStage, http.StatusBadRequest, "Unknown status"},
	{workspace.ErrNotSyncReady, http.StatusUnprocessableEntity, "Resolve duplicate or missing titles before syncing"},
	{workflow.ErrRemarksRequired, http.StatusUnprocessableEntity, "Remarks are required when sending a task back"},
	{workflow.ErrIllegalTransition, http.StatusUnprocessableEntity, "This status change is not allowed"},
	{workflow.ErrForbidden, http.StatusForbidden, "You are not allowed to perform this action"},
	{workspace.ErrNotOwner, http.StatusForbidden, "This import belongs to another user"},
	{workspace.ErrNotFound, http.StatusNotFound, "Import not found or expired"},
	{storage.ErrTaskNotFound, http.StatusNotFound, "Task not found"},
	{workspace.ErrConfirmationRequired, http.StatusConflict, "Some records are marked for UPDATE and will overwrite existing task data"},
	{workspace.ErrVersionConflict, http.StatusConflict, "The import was changed by another request, reload and retry"},
	{errStaleWorkspace, http.StatusConflict, "The import was changed by another request, reload and retry"},
	{workspace.ErrCommitInFlight, http.StatusConflict, "A sync for this import is already in progress"},
	{storage.ErrConcurrencyConflict, http.StatusConflict, "The task was changed by someone else, reload and retry"},
	{errNothingToUndo, http.StatusConflict, "Nothing to undo"},
	{errDuplicateRequest, http.StatusConflict, "duplicate request"},
}

type userMessager interface {
	UserMessage() string
}

// classify maps err to an HTTP status and the body shown to the client.
func classify(err error) (int, errorResponse) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			body := errorResponse{Message: m.message}
			if m.target == workspace.ErrConfirmationRequired {
				body.ConfirmationRequired = true
			}
			return m.status, body
		}
	}

	var remote *ingest.RemoteError
	if errors.As(err, &remote) {
		return http.StatusBadGateway, errorResponse{Message: remote.UserMessage()}
	}
	var submit *workspace.SubmitError
	if errors.As(err, &submit) {
		return http.StatusBadGateway, errorResponse{Message: submit.Message}
	}
	var um userMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		return http.StatusBadGateway, errorResponse{Message: um.UserMessage()}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		return he.Code, errorResponse{Message: msg}
	}
	return http.StatusInternalServerError, errorResponse{Message: "Internal error"}
}

// fail records the failing stage and writes the error response.
func fail(c echo.Context, stage string, err error) error {
	metricsFrom(c).Fail(stage, err)
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Errorf("%s: %v", stage, err)
	}
	return writeJSON(c, status, body)
}
