// Package migrations embeds the SQL schema for the orders database.
package migrations

import _ "embed"

//go:embed 001_init.sql
var Init string
