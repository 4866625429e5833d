// Package roster reads student roster CSVs and writes the per-student
// meeting output CSV, merging results from earlier partial runs.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"regexp"
)

// emailHeaderRe finds the email column in a roster header. Rosters
// exported from enrollment systems label it "Email", "Email Address",
// "Student Email" and so on.
var emailHeaderRe = regexp.MustCompile(`(?i)\bemail\b`)

// outputColumns is the fixed schema of the output CSV.
var outputColumns = []string{"email", "link", "passcode"}

// Entry is one student row with the meeting assigned to them. Link and
// Passcode stay empty until a meeting has been generated.
type Entry struct {
	Email    string
	Link     string
	Passcode string
}

// Roster holds entries in roster order with unique-email lookup.
type Roster struct {
	entries []*Entry
	byEmail map[string]*Entry
}

// Entries returns the entries in roster order.
func (r *Roster) Entries() []*Entry {
	return r.entries
}

// Lookup returns the entry for an email, or nil.
func (r *Roster) Lookup(email string) *Entry {
	return r.byEmail[email]
}

// Read loads a roster CSV. The email column is located by header name;
// any other columns are ignored. Rows keep their file order.
func Read(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse roster %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("roster %s is empty", path)
	}

	emailCol := -1
	for i, cell := range rows[0] {
		if emailHeaderRe.MatchString(cell) {
			emailCol = i
			break
		}
	}
	if emailCol == -1 {
		return nil, fmt.Errorf("missing email column in roster %s", path)
	}

	r := &Roster{byEmail: make(map[string]*Entry)}
	for _, row := range rows[1:] {
		if emailCol >= len(row) || row[emailCol] == "" {
			continue
		}
		email := row[emailCol]
		if r.byEmail[email] != nil {
			continue
		}
		entry := &Entry{Email: email}
		r.entries = append(r.entries, entry)
		r.byEmail[email] = entry
	}

	return r, nil
}

// MergeOutput folds a previous output CSV back into the roster so
// already generated meetings are not regenerated. A missing file is
// fine; a file with the wrong schema is not. Rows for students no
// longer on the roster are dropped.
func (r *Roster) MergeOutput(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open output CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse output CSV %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil
	}

	header := rows[0]
	if len(header) != len(outputColumns) ||
		header[0] != outputColumns[0] ||
		header[1] != outputColumns[1] ||
		header[2] != outputColumns[2] {
		return fmt.Errorf("invalid output CSV %s: expected columns %v", path, outputColumns)
	}

	for _, row := range rows[1:] {
		entry := r.byEmail[row[0]]
		if entry == nil {
			continue
		}
		entry.Link = row[1]
		entry.Passcode = row[2]
	}

	return nil
}

// WriteOutput writes every entry, including ones still without a link,
// so partial progress survives a failed run.
func (r *Roster) WriteOutput(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output CSV: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(outputColumns); err != nil {
		return fmt.Errorf("failed to write output header: %w", err)
	}
	for _, entry := range r.entries {
		if err := writer.Write([]string{entry.Email, entry.Link, entry.Passcode}); err != nil {
			return fmt.Errorf("failed to write output row: %w", err)
		}
	}
	writer.Flush()

	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush output CSV: %w", err)
	}
	return nil
}
