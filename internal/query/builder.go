package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BradenHooton/consensus/internal/models"
	"github.com/jackc/pgx/v5"
)

// plan is a SearchFilter checked against one entity. Every identifier in it
// comes from the registry.
type plan struct {
	entity    *Entity
	columns   []Column
	internal  map[string]bool // selected only to join relations, stripped from output
	relations []Relation
	where     []string
	args      []any
	order     []OrderBy
	limit     int
	offset    int
}

func newPlan(e *Entity, f SearchFilter) (*plan, error) {
	if f.Offset < 0 {
		return nil, models.NewValidationError("offset", "must not be negative")
	}

	p := &plan{
		entity:   e,
		internal: make(map[string]bool),
		limit:    f.Limit,
		offset:   f.Offset,
	}

	if err := p.project(f.Select); err != nil {
		return nil, err
	}
	if err := p.expand(f.Relation); err != nil {
		return nil, err
	}
	if err := p.filter(f.WhereConditions); err != nil {
		return nil, err
	}
	p.search(f.Keyword)
	if err := p.sort(f.OrderBy); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *plan) project(fields []string) error {
	if len(fields) == 0 {
		p.columns = append(p.columns, p.entity.Columns...)
		return nil
	}

	seen := make(map[string]bool, len(fields))
	for _, field := range fields {
		c, ok := p.entity.Column(field)
		if !ok {
			return models.NewValidationError("select", "unknown field "+strconv.Quote(field))
		}
		if seen[field] {
			continue
		}
		seen[field] = true
		p.columns = append(p.columns, c)
	}
	return nil
}

func (p *plan) expand(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		r, ok := p.entity.Relation(name)
		if !ok {
			return models.NewValidationError("relation", "unknown relation "+strconv.Quote(name))
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		p.relations = append(p.relations, r)

		if !p.selects(r.LocalField) {
			c, _ := p.entity.Column(r.LocalField)
			p.columns = append(p.columns, c)
			p.internal[r.LocalField] = true
		}
	}
	return nil
}

func (p *plan) selects(field string) bool {
	for _, c := range p.columns {
		if c.Field == field {
			return true
		}
	}
	return false
}

func (p *plan) filter(conds []WhereCondition) error {
	for _, cond := range conds {
		c, ok := p.entity.Column(cond.Name)
		if !ok {
			return models.NewValidationError("whereConditions", "unknown field "+strconv.Quote(cond.Name))
		}

		value, err := coerce(c.Kind, cond.Value)
		if err != nil {
			return models.NewValidationError(cond.Name, err.Error())
		}

		if value == nil {
			p.where = append(p.where, quote(c.Name)+" IS NULL")
			continue
		}
		p.args = append(p.args, value)
		p.where = append(p.where, fmt.Sprintf("%s = $%d", quote(c.Name), len(p.args)))
	}
	return nil
}

func (p *plan) search(keyword string) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" || len(p.entity.Keyword) == 0 {
		return
	}

	p.args = append(p.args, "%"+escapeLike(keyword)+"%")
	placeholder := "$" + strconv.Itoa(len(p.args))

	ors := make([]string, 0, len(p.entity.Keyword))
	for _, field := range p.entity.Keyword {
		c, _ := p.entity.Column(field)
		ors = append(ors, quote(c.Name)+" ILIKE "+placeholder)
	}
	p.where = append(p.where, "("+strings.Join(ors, " OR ")+")")
}

func (p *plan) sort(o *OrderBy) error {
	order := p.entity.DefaultOrder
	if o != nil {
		order = *o
	}
	if order.Field == "" {
		return nil
	}

	if _, ok := p.entity.Column(order.Field); !ok {
		return models.NewValidationError("orderBy", "unknown field "+strconv.Quote(order.Field))
	}
	order, ok := order.normalize()
	if !ok {
		return models.NewValidationError("orderBy", "direction must be ASC or DESC")
	}
	p.order = append(p.order, order)

	// id breaks ties so numeric pages do not overlap
	if order.Field != "id" {
		if _, ok := p.entity.Column("id"); ok {
			p.order = append(p.order, OrderBy{Field: "id", Direction: Asc})
		}
	}
	return nil
}

func (p *plan) whereClause() string {
	if len(p.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.where, " AND ")
}

// selectSQL renders the row query. A limit of zero or less means no LIMIT.
func (p *plan) selectSQL() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	writeColumns(&sb, p.columns)
	sb.WriteString(" FROM ")
	sb.WriteString(quote(p.entity.Table))
	sb.WriteString(p.whereClause())

	if len(p.order) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range p.order {
			if i > 0 {
				sb.WriteString(", ")
			}
			c, _ := p.entity.Column(o.Field)
			sb.WriteString(quote(c.Name))
			sb.WriteByte(' ')
			sb.WriteString(string(o.Direction))
		}
	}

	args := append([]any(nil), p.args...)
	if p.limit > 0 {
		args = append(args, p.limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	if p.offset > 0 {
		args = append(args, p.offset)
		sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}

	return sb.String(), args
}

func (p *plan) countSQL() (string, []any) {
	return "SELECT COUNT(*) FROM " + quote(p.entity.Table) + p.whereClause(), p.args
}

// RelatedRowsPerParent caps how many rows a Many relation attaches to each
// parent row
const RelatedRowsPerParent = 100

// relationSQL loads the rows of the relation target whose foreign field
// matches one of the collected keys ($1). Many relations keep at most $2 rows
// per key, lowest id first.
func relationSQL(target *Entity, r Relation) string {
	foreign, _ := target.Column(r.ForeignField)
	_, hasID := target.Column("id")

	var sb strings.Builder
	sb.WriteString("SELECT ")
	writeColumns(&sb, target.Columns)
	sb.WriteString(" FROM ")
	if r.Many {
		sb.WriteString("(SELECT *, ROW_NUMBER() OVER (PARTITION BY ")
		sb.WriteString(quote(foreign.Name))
		if hasID {
			sb.WriteString(` ORDER BY "id" ASC`)
		}
		sb.WriteString(`) AS "_rank" FROM `)
		sb.WriteString(quote(target.Table))
		sb.WriteString(" WHERE ")
		sb.WriteString(quote(foreign.Name))
		sb.WriteString(` = ANY($1)) AS "related" WHERE "_rank" <= $2`)
	} else {
		sb.WriteString(quote(target.Table))
		sb.WriteString(" WHERE ")
		sb.WriteString(quote(foreign.Name))
		sb.WriteString(" = ANY($1)")
	}
	if hasID {
		sb.WriteString(` ORDER BY "id" ASC`)
	}
	return sb.String()
}

func writeColumns(sb *strings.Builder, cols []Column) {
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quote(c.Name))
		sb.WriteString(" AS ")
		sb.WriteString(quote(c.Field))
	}
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
