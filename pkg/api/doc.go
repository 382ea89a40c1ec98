// Package api describes remote operations as data and dispatches them over a
// pluggable HTTP transport.
//
// # Overview
//
// An Operation names one endpoint: its HTTP method, a path template such as
// "/organizations/{organization}/databases/{database}", and an ordered table of
// ErrorVariant values mapping wire error codes to typed errors. A Client pairs
// a Transport with a CredentialSource; Call performs exactly one request and
// never retries. Concrete transports and credential sources are wired by the
// apiclient package.
//
//	var getDatabase = api.NewOperation[GetDatabaseInput, Database](
//	  "GetDatabase", http.MethodGet, "/organizations/{organization}/databases/{database}",
//	  api.ErrorVariant[GetDatabaseInput]{Code: "not_found", New: func(in GetDatabaseInput, msg string) error {
//	    return &DatabaseNotFound{Database: in.Database, Message: msg}
//	  }},
//	)
//
//	db, err := getDatabase.Call(ctx, client, GetDatabaseInput{Database: "main"})
//
// # Requests
//
// Inputs are encoded through their JSON form. Path fields are substituted and
// percent-escaped; an empty organization falls back to the credentials. The
// remaining fields travel in the JSON body, or in the query string for GET and
// HEAD. Null and omitted fields are not sent.
//
// # Errors
//
// Error responses are matched against the operation's variants by their
// "code" field, first match wins. Anything else becomes an *APIError carrying
// the status and raw body. *ParseError, *NetworkError and *ConfigurationError
// cover malformed success bodies, transport failures, and missing credentials.
// Every error type carries categories from the category package, which is what
// retry policies inspect.
//
// # Interceptors and catalogs
//
// InterceptorChain hooks run around each request inside the HTTP transport
// for logging, headers and per-operation metrics. LoadCatalog builds untyped
// operations from a YAML document for tools that discover endpoints at runtime.
package api
