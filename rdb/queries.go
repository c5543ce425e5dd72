package rdb

import "fmt"

const columns = "id, transaction_id, transaction_type, data_source, execute_statement, parameters, creation_time, async_delivery_try_times"

type queries struct {
	insert             string
	selectByID         string
	remove             string
	increment          string
	selectEligible     string
	selectEligibleType string
	countEligible      string
	countEligibleType  string
	purge              string
}

func newQueries(table string, dialect Dialect) queries {
	where := "async_delivery_try_times >= ? AND async_delivery_try_times < ? AND creation_time <= ?"
	whereType := where + " AND transaction_type = ?"
	selectTemplate := "SELECT %s FROM %s WHERE %s ORDER BY creation_time ASC, id ASC LIMIT ?"

	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			table,
			columns,
		),
		selectByID:         fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, table),
		remove:             fmt.Sprintf("DELETE FROM %s WHERE id = ?", table),
		increment:          fmt.Sprintf("UPDATE %s SET async_delivery_try_times = async_delivery_try_times + 1 WHERE id = ?", table),
		selectEligible:     fmt.Sprintf(selectTemplate, columns, table, where),
		selectEligibleType: fmt.Sprintf(selectTemplate, columns, table, whereType),
		countEligible:      fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where),
		countEligibleType:  fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, whereType),
		purge:              dialect.purgeQuery(table),
	}
}
