package httpapi

import (
	"github.com/tuannm99/novacsv/internal/engine"
	"github.com/tuannm99/novacsv/internal/sql/executor"
)

// ExecuteRequest is the body of POST /query.
type ExecuteRequest struct {
	SQL string `json:"sql"`
}

// ExecuteResponse carries either a result or an error. Code classifies the
// error for clients: syntax, schema, unsupported, not_found, locked, internal.
type ExecuteResponse struct {
	Result *executor.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
	Code   string           `json:"code,omitempty"`
}

type TablesResponse struct {
	Tables []string `json:"tables"`
}

type TableResponse struct {
	Table   *engine.TableMeta  `json:"table"`
	Indexes []engine.IndexMeta `json:"indexes"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
