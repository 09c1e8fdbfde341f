package repository

import (
	"database/sql"
	"strconv"
	"strings"
)

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// requireRow turns an UPDATE that touched nothing into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func limitOffset(limit, offset int, args []interface{}) (string, []interface{}) {
	var sb strings.Builder
	if limit > 0 {
		args = append(args, limit)
		sb.WriteString(" LIMIT " + placeholder(len(args)))
	}
	if offset > 0 {
		args = append(args, offset)
		sb.WriteString(" OFFSET " + placeholder(len(args)))
	}
	return sb.String(), args
}
