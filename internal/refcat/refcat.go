// Package refcat provides read-only access to a reference measurement
// catalog, used as the source of fixed ellipses in forced photometry.
// The catalog is an external SQLite file produced by an earlier
// standalone run, possibly by another host, so it is opened with the
// cgo sqlite driver in read-only mode and never written.
package refcat

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"cmodel/internal/fit"
	"cmodel/internal/shape"
)

// ErrNotFound is returned when the catalog holds no row for an object.
var ErrNotFound = errors.New("refcat: object not found")

// Catalog is a read-only reference catalog connection.
type Catalog struct {
	path string
	db   *sql.DB
}

// Open connects to the catalog at path.
func Open(path string) (*Catalog, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reference catalog not accessible: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open reference catalog: %w", err)
	}
	return &Catalog{path: path, db: db}, nil
}

// Close closes the catalog connection.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Reference fetches the stored ellipses and flags needed to force a
// new measurement of the object.
func (c *Catalog) Reference(objectID int64) (fit.Result, error) {
	row := c.db.QueryRow(`SELECT flags, flux, flux_err, frac_dev,
            initial_ixx, initial_iyy, initial_ixy,
            exp_ixx, exp_iyy, exp_ixy,
            dev_ixx, dev_iyy, dev_ixy
        FROM measurements WHERE object_id = ?;`, objectID)

	var res fit.Result
	err := row.Scan(&res.Flags, &res.Flux, &res.FluxErr, &res.FracDev,
		&res.Initial.Ellipse.Ixx, &res.Initial.Ellipse.Iyy, &res.Initial.Ellipse.Ixy,
		&res.Exp.Ellipse.Ixx, &res.Exp.Ellipse.Iyy, &res.Exp.Ellipse.Ixy,
		&res.Dev.Ellipse.Ixx, &res.Dev.Ellipse.Iyy, &res.Dev.Ellipse.Ixy)
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// Usable reports whether a reference result carries the three valid
// ellipses forced photometry needs.
func Usable(res fit.Result) bool {
	for _, q := range []shape.Quadrupole{res.Initial.Ellipse, res.Exp.Ellipse, res.Dev.Ellipse} {
		if !q.Valid() {
			return false
		}
	}
	return true
}

// ObjectIDs lists every object in the catalog.
func (c *Catalog) ObjectIDs() ([]int64, error) {
	rows, err := c.db.Query(`SELECT object_id FROM measurements ORDER BY object_id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
