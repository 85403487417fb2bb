package gql

import (
	"net/http"

	"github.com/graphql-go/handler"
)

// NewHandler builds the /graphql HTTP handler with GraphiQL enabled.
func (rs *Resolver) NewHandler() (http.Handler, error) {
	schema, err := rs.Schema()
	if err != nil {
		return nil, err
	}
	return handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: true,
	}), nil
}
