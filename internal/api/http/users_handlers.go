package http

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type userRow struct {
	Username string
	Password string
	Role     string
}

// BulkUpsertUsersHandler imports users from a CSV upload with columns
// username, password and optionally role. Existing usernames are
// updated; new ones require a password.
func BulkUpsertUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			http.Error(w, "bad multipart form", 400)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file field: file", 400)
			return
		}
		defer f.Close()

		rows, err := parseUsersCSV(f)
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		inserted, updated, err := upsertUsers(r.Context(), db, rows)
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		writeJSON(w, 200, map[string]int{"inserted": inserted, "updated": updated})
	}
}

func parseUsersCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["username"]; !ok {
		return nil, errors.New("missing column: username")
	}

	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := userRow{Username: strings.TrimSpace(rec[idx["username"]])}
		if i, ok := idx["password"]; ok {
			row.Password = rec[i]
		}
		if i, ok := idx["role"]; ok {
			row.Role = strings.ToLower(strings.TrimSpace(rec[i]))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func upsertUsers(ctx context.Context, db *sql.DB, rows []userRow) (inserted, updated int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	now := time.Now().Unix()
	for _, r := range rows {
		if r.Username == "" {
			err = errors.New("blank username")
			return
		}
		if r.Role == "" {
			r.Role = "student"
		}
		if r.Role != "student" && r.Role != "admin" {
			err = errors.New("invalid role: " + r.Role)
			return
		}

		var phash string
		if r.Password != "" {
			var b []byte
			if b, err = bcrypt.GenerateFromPassword([]byte(r.Password), 12); err != nil {
				return
			}
			phash = string(b)
		}

		var existingID string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE username=$1`, r.Username).Scan(&existingID)
		switch {
		case err == nil:
			if phash != "" {
				_, err = tx.ExecContext(ctx,
					`UPDATE users SET role=$1, password_hash=$2 WHERE id=$3`,
					r.Role, phash, existingID)
			} else {
				_, err = tx.ExecContext(ctx,
					`UPDATE users SET role=$1 WHERE id=$2`, r.Role, existingID)
			}
			if err != nil {
				return
			}
			updated++
		case errors.Is(err, sql.ErrNoRows):
			if phash == "" {
				err = errors.New("password required for new user: " + r.Username)
				return
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (id, username, password_hash, role, created_at)
				 VALUES ($1,$2,$3,$4,$5)`,
				uuid.NewString(), r.Username, phash, r.Role, now)
			if err != nil {
				return
			}
			inserted++
		default:
			return
		}
	}
	return
}

func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)

		rows, err := db.QueryContext(r.Context(), `
			SELECT id, username, role, created_at FROM users
			 WHERE ($1 = '' OR username LIKE '%'||$1||'%')
			 ORDER BY username LIMIT $2`, q, limit)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		defer rows.Close()

		type user struct {
			ID        string `json:"id"`
			Username  string `json:"username"`
			Role      string `json:"role"`
			CreatedAt int64  `json:"created_at"`
		}
		out := []user{}
		for rows.Next() {
			var u user
			if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			out = append(out, u)
		}
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, out)
	}
}
