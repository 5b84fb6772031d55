package query

import (
	"fmt"
	"strings"
)

// Kind is the storage type of a column, used to coerce filter values
type Kind int

const (
	KindInt Kind = iota
	KindText
	KindFlag // SMALLINT 0/1, accepts booleans
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindText:
		return "text"
	case KindFlag:
		return "flag"
	case KindBool:
		return "boolean"
	case KindTime:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Column maps an API field name onto a SQL column
type Column struct {
	Field string
	Name  string
	Kind  Kind
}

// Relation declares an eager-loadable association. Many relations attach a
// list, the others attach a single object or null.
type Relation struct {
	Name         string
	Entity       string
	LocalField   string
	ForeignField string
	Many         bool
}

// Entity describes one searchable table. Only the columns listed here exist
// as far as the engine is concerned.
type Entity struct {
	Name         string
	Table        string
	Columns      []Column
	Keyword      []string
	Relations    []Relation
	DefaultOrder OrderBy

	byField    map[string]Column
	byRelation map[string]Relation
}

// Column returns the column registered under an API field name
func (e *Entity) Column(field string) (Column, bool) {
	c, ok := e.byField[field]
	return c, ok
}

// Relation returns the relation registered under name
func (e *Entity) Relation(name string) (Relation, bool) {
	r, ok := e.byRelation[name]
	return r, ok
}

// Registry holds every entity the engine may query
type Registry struct {
	entities map[string]*Entity
}

// NewRegistry indexes the entities and checks that keyword fields,
// relations and default orders all point at registered columns
func NewRegistry(entities ...*Entity) (*Registry, error) {
	reg := &Registry{entities: make(map[string]*Entity, len(entities))}

	for _, e := range entities {
		if _, dup := reg.entities[e.Name]; dup {
			return nil, fmt.Errorf("query: duplicate entity %q", e.Name)
		}
		e.byField = make(map[string]Column, len(e.Columns))
		for _, c := range e.Columns {
			e.byField[c.Field] = c
		}
		e.byRelation = make(map[string]Relation, len(e.Relations))
		for _, r := range e.Relations {
			e.byRelation[r.Name] = r
		}
		reg.entities[e.Name] = e
	}

	for _, e := range reg.entities {
		for _, field := range e.Keyword {
			c, ok := e.byField[field]
			if !ok || c.Kind != KindText {
				return nil, fmt.Errorf("query: entity %q keyword field %q must be a text column", e.Name, field)
			}
		}
		if e.DefaultOrder.Field != "" {
			if _, ok := e.byField[e.DefaultOrder.Field]; !ok {
				return nil, fmt.Errorf("query: entity %q default order field %q is not a column", e.Name, e.DefaultOrder.Field)
			}
		}
		for _, r := range e.Relations {
			target, ok := reg.entities[r.Entity]
			if !ok {
				return nil, fmt.Errorf("query: relation %s.%s targets unknown entity %q", e.Name, r.Name, r.Entity)
			}
			local, ok := e.byField[r.LocalField]
			if !ok {
				return nil, fmt.Errorf("query: relation %s.%s local field %q is not a column", e.Name, r.Name, r.LocalField)
			}
			foreign, ok := target.byField[r.ForeignField]
			if !ok {
				return nil, fmt.Errorf("query: relation %s.%s foreign field %q is not a column", e.Name, r.Name, r.ForeignField)
			}
			if local.Kind != foreign.Kind || (local.Kind != KindInt && local.Kind != KindText) {
				return nil, fmt.Errorf("query: relation %s.%s must join integer or text columns of the same kind", e.Name, r.Name)
			}
		}
	}

	return reg, nil
}

// Entity looks up an entity by name, case-insensitively
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[strings.ToLower(name)]
	return e, ok
}

// Entity names used by the account service and handlers
const (
	EntityUser      = "user"
	EntityUserGroup = "usergroup"
	EntityLoginLog  = "loginlog"
	EntityProposal  = "proposal"
)

// DefaultRegistry returns the entities served by the API. The users password
// column is deliberately absent so it can never be selected or filtered on.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(
		&Entity{
			Name:  EntityUser,
			Table: "users",
			Columns: []Column{
				{"id", "id", KindInt},
				{"userGroupId", "user_group_id", KindInt},
				{"username", "username", KindText},
				{"firstName", "first_name", KindText},
				{"lastName", "last_name", KindText},
				{"email", "email", KindText},
				{"address", "address", KindText},
				{"phoneNumber", "phone_number", KindText},
				{"avatar", "avatar", KindText},
				{"avatarPath", "avatar_path", KindText},
				{"deleteFlag", "delete_flag", KindFlag},
				{"isActive", "is_active", KindFlag},
				{"createdBy", "created_by", KindInt},
				{"createdByUsername", "created_by_username", KindText},
				{"modifiedBy", "modified_by", KindInt},
				{"modifiedByUsername", "modified_by_username", KindText},
				{"createdDate", "created_date", KindTime},
				{"modifiedDate", "modified_date", KindTime},
			},
			Keyword: []string{"username", "firstName", "lastName", "email"},
			Relations: []Relation{
				{Name: "usergroup", Entity: EntityUserGroup, LocalField: "userGroupId", ForeignField: "id"},
				{Name: "loginlogs", Entity: EntityLoginLog, LocalField: "id", ForeignField: "userId", Many: true},
			},
			DefaultOrder: OrderBy{Field: "id", Direction: Asc},
		},
		&Entity{
			Name:  EntityUserGroup,
			Table: "user_groups",
			Columns: []Column{
				{"id", "id", KindInt},
				{"name", "name", KindText},
				{"description", "description", KindText},
				{"isActive", "is_active", KindFlag},
				{"createdDate", "created_date", KindTime},
				{"modifiedDate", "modified_date", KindTime},
			},
			Keyword: []string{"name", "description"},
			Relations: []Relation{
				{Name: "users", Entity: EntityUser, LocalField: "id", ForeignField: "userGroupId", Many: true},
			},
			DefaultOrder: OrderBy{Field: "id", Direction: Asc},
		},
		&Entity{
			Name:  EntityLoginLog,
			Table: "login_logs",
			Columns: []Column{
				{"id", "id", KindInt},
				{"userId", "user_id", KindInt},
				{"username", "username", KindText},
				{"ipAddress", "ip_address", KindText},
				{"userAgent", "user_agent", KindText},
				{"createdDate", "created_date", KindTime},
			},
			Keyword: []string{"username", "ipAddress"},
			Relations: []Relation{
				{Name: "user", Entity: EntityUser, LocalField: "userId", ForeignField: "id"},
			},
			DefaultOrder: OrderBy{Field: "createdDate", Direction: Desc},
		},
		&Entity{
			Name:  EntityProposal,
			Table: "proposals",
			Columns: []Column{
				{"id", "id", KindInt},
				{"roomId", "room_id", KindInt},
				{"title", "title", KindText},
				{"content", "content", KindText},
				{"reqSupporter", "req_supporter", KindInt},
				{"approveUserId", "approve_user_id", KindInt},
				{"approveDate", "approve_date", KindTime},
				{"likeCount", "like_count", KindInt},
				{"dislikeCount", "dislike_count", KindInt},
				{"endDate", "end_date", KindTime},
				{"createdDate", "created_date", KindTime},
				{"modifiedDate", "modified_date", KindTime},
			},
			Keyword: []string{"title", "content"},
			Relations: []Relation{
				{Name: "approveUser", Entity: EntityUser, LocalField: "approveUserId", ForeignField: "id"},
			},
			DefaultOrder: OrderBy{Field: "id", Direction: Desc},
		},
	)
	if err != nil {
		panic(err)
	}
	return reg
}
