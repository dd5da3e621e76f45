package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/foodfinderyyc/smsbot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullable converts an optional pointer field into a driver value.
func nullable[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// rebindDollar rewrites '?' placeholders as PostgreSQL's $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// scanEvent scans a ConvoEvent from sql.Rows.
func scanEvent(rows *sql.Rows) (models.ConvoEvent, error) {
	var e models.ConvoEvent
	var elapsed sql.NullFloat64
	var response, searchParams sql.NullString
	var valid, found sql.NullBool
	err := rows.Scan(
		&e.ID, &e.User, &e.SessionNumber, &e.EventCode, &e.StepID,
		&elapsed, &response, &valid, &found, &searchParams, &e.CreatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("scan event failed: %w", err)
	}
	if elapsed.Valid {
		e.ElapsedSeconds = models.Float(elapsed.Float64)
	}
	if response.Valid {
		e.ResponseText = models.String(response.String)
	}
	if valid.Valid {
		e.ValidResponse = models.Bool(valid.Bool)
	}
	if found.Valid {
		e.LocationsFound = models.Bool(found.Bool)
	}
	e.SearchParams = searchParams.String
	return e, nil
}
