package main

import (
	"fmt"
	"strings"
)

// driverName 把数据库类型映射为 database/sql 驱动名
func driverName(dbType string) (string, error) {
	switch dbType {
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("不支持的数据库类型 '%s'", dbType)
	}
}

// splitStatements 分割SQL语句（按分号分割，忽略字符串中的分号，去掉整行注释）
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	var inString bool
	var stringChar rune

	flush := func() {
		if stmt := stripComments(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, r := range sql {
		switch {
		case r == '\'' || r == '"' || r == '`':
			if !inString {
				inString = true
				stringChar = r
			} else if r == stringChar {
				inString = false
			}
			current.WriteRune(r)
		case r == ';' && !inString:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return statements
}

// stripComments 去掉以 -- 开头的整行注释
func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// summary 取语句首行用于显示
func summary(stmt string) string {
	first := strings.SplitN(stmt, "\n", 2)[0]
	if len(first) > 60 {
		first = first[:60] + "..."
	}
	return first
}
