// Package gql exposes the relay's query/mutation surface. It mirrors the REST
// adapter: listing users, listing a pin holder's messages and creating a
// message, with errors expressed as GraphQL errors instead of status codes.
package gql

import (
	"errors"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/relayhub/relay/internal/bus"
	"github.com/relayhub/relay/internal/delivery"
	"github.com/relayhub/relay/internal/registry"
	"go.uber.org/zap"
)

var errUserNotExists = errors.New("user not exists")

// Resolver holds the collaborators the schema resolves against.
type Resolver struct {
	reg      *registry.Registry
	delivery *delivery.Client
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(reg *registry.Registry, d *delivery.Client, b *bus.Bus, logger *zap.Logger) *Resolver {
	return &Resolver{reg: reg, delivery: d, bus: b, logger: logger}
}

// Schema builds the executable schema.
func (rs *Resolver) Schema() (graphql.Schema, error) {
	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":     &graphql.Field{Type: graphql.Int},
			"online": &graphql.Field{Type: graphql.Boolean},
			"name":   &graphql.Field{Type: graphql.String},
		},
	})

	messageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Message",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.Int},
			"to":        &graphql.Field{Type: graphql.Int},
			"from":      &graphql.Field{Type: graphql.Int},
			"text":      &graphql.Field{Type: graphql.String},
			"delivered": &graphql.Field{Type: graphql.Boolean},
		},
	})

	messagesType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Messages",
		Fields: graphql.Fields{
			"count": &graphql.Field{Type: graphql.Int},
			"items": &graphql.Field{Type: graphql.NewList(messageType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"users": &graphql.Field{
				Type: graphql.NewList(userType),
				Resolve: func(graphql.ResolveParams) (any, error) {
					return rs.reg.GetUsers(nil), nil
				},
			},
			"messages": &graphql.Field{
				Type: messagesType,
				Args: graphql.FieldConfigArgument{
					"pin": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					user, ok := rs.reg.GetUserByPin(p.Args["pin"].(string))
					if !ok {
						return nil, errUserNotExists
					}
					msgs := rs.reg.GetMessages(user)
					return map[string]any{"count": len(msgs), "items": msgs}, nil
				},
			},
		},
	})

	createMessageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CreateMessage",
		Fields: graphql.Fields{
			"delivered": &graphql.Field{Type: graphql.Boolean},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createMessage": &graphql.Field{
				Type: createMessageType,
				Args: graphql.FieldConfigArgument{
					"pin":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"text":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"userId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: rs.createMessage,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// createMessage runs the same synchronous delivery flow as the REST send
// handler.
func (rs *Resolver) createMessage(p graphql.ResolveParams) (any, error) {
	from, ok := rs.reg.GetUserByPin(p.Args["pin"].(string))
	if !ok {
		return nil, errUserNotExists
	}
	to, ok := rs.reg.GetUserByID(p.Args["userId"].(int))
	if !ok {
		return nil, errUserNotExists
	}

	msg, err := rs.reg.AddMessage(from, to, p.Args["text"].(string))
	if err != nil {
		rs.logger.Error("failed to add message", zap.Error(err))
		return nil, err
	}
	rs.bus.Publish(bus.Event{Kind: bus.KindMessageCreated, Timestamp: time.Now(), Payload: msg})

	delivered := rs.delivery.Send(p.Context, msg, to.Endpoint)
	rs.reg.SetMessageDelivered(msg.ID, delivered)
	if err := rs.reg.Dump(); err != nil {
		rs.logger.Error("failed to persist delivery result", zap.Error(err), zap.Int("message_id", msg.ID))
		return nil, err
	}
	rs.bus.Publish(bus.Event{
		Kind:      bus.KindMessageDelivered,
		Timestamp: time.Now(),
		Payload:   map[string]any{"message_id": msg.ID, "delivered": delivered},
	})

	return map[string]any{"delivered": delivered}, nil
}
