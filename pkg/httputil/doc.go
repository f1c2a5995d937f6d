// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, role)
//	httputil.WriteBadRequest(w, "invalid category")
//	httputil.WriteForbidden(w, "insufficient permissions")
//
// Internal errors never echo their cause; log it and call WriteInternalError.
//
// # Request Parsing
//
// Bodies are decoded and checked against `validate` struct tags
// (go-playground/validator):
//
//	var req createRoleRequest
//	if !httputil.DecodeAndValidate(w, r, &req) {
//		return // 400 already written
//	}
//
// Path and query parameters:
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	projectID, err := httputil.ParseQueryOptionalInt64(r, "project_id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
