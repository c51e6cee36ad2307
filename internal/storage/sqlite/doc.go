// Package sqlite persists evaluation runs and their curves.
//
// A run is one row of evaluation_runs holding the scalar results and the
// parameters used; each curve row of each category is one row of
// evaluation_curve_rows. The pooled micro-averaged curve is stored under
// category 0. The schema is owned by the migrations in internal/db.
package sqlite
