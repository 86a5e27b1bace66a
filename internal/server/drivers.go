package server

import (
	// Drivers selectable with the "driver" key of a target.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)
