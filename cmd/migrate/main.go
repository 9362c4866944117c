package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// migrate 对目标数据库执行 migrations/ 下的 SQL 脚本。
// gorm 的 AutoMigrate 在服务启动时兜底，这里用于受控环境的显式建表与回滚。
func main() {
	dbType := flag.String("type", "", "数据库类型: mysql 或 postgres")
	dbDSN := flag.String("dsn", "", "数据库连接串")
	action := flag.String("action", "up", "操作: up (升级) 或 down (回滚)")
	name := flag.String("name", "001_initial_schema", "迁移名称")
	flag.Parse()

	if err := run(*dbType, *dbDSN, *action, *name); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(dbType, dsn, action, name string) error {
	if dbType != "mysql" && dbType != "postgres" {
		return fmt.Errorf("不支持的数据库类型 %q (支持: mysql, postgres)", dbType)
	}
	if dsn == "" {
		return fmt.Errorf("缺少 -dsn 参数")
	}
	if action != "up" && action != "down" {
		return fmt.Errorf("不支持的操作 %q (支持: up, down)", action)
	}

	db, err := sql.Open(dbType, dsn)
	if err != nil {
		return fmt.Errorf("无法打开数据库连接: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}
	fmt.Printf("已连接到 %s 数据库\n", dbType)

	content, path, err := readMigration(dbType, action, name)
	if err != nil {
		return err
	}
	fmt.Printf("读取迁移文件: %s\n", path)

	stmts := splitStatements(string(content))
	fmt.Printf("执行 %s 操作, 共 %d 条语句\n", action, len(stmts))

	for i, stmt := range stmts {
		firstLine := strings.SplitN(stmt, "\n", 2)[0]
		if len(firstLine) > 60 {
			firstLine = firstLine[:60] + "..."
		}
		fmt.Printf("[%d/%d] %s\n", i+1, len(stmts), firstLine)

		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("执行失败: %w\nSQL: %s", err, stmt)
		}
	}

	fmt.Println("迁移完成")
	return nil
}

// readMigration 在工作目录及其上两级查找迁移文件。
func readMigration(dbType, action, name string) ([]byte, string, error) {
	relative := filepath.Join("migrations", dbType, fmt.Sprintf("%s.%s.sql", name, action))

	wd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("无法获取工作目录: %w", err)
	}

	candidates := []string{
		relative,
		filepath.Join(wd, relative),
		filepath.Join(wd, "..", "..", relative),
	}

	for _, path := range candidates {
		content, err := os.ReadFile(path)
		if err == nil {
			return content, path, nil
		}
	}

	return nil, "", fmt.Errorf("找不到迁移文件 %s (查找路径: %s)", relative, strings.Join(candidates, ", "))
}

// splitStatements 按分号切分 SQL 语句，跳过字符串字面量内的分号与纯注释段。
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	var inString bool
	var quote rune

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		current.Reset()
		if stmt == "" || isCommentOnly(stmt) {
			return
		}
		statements = append(statements, stmt)
	}

	for _, r := range script {
		switch {
		case r == '\'' || r == '"' || r == '`':
			if !inString {
				inString = true
				quote = r
			} else if r == quote {
				inString = false
			}
			current.WriteRune(r)
		case r == ';' && !inString:
			current.WriteRune(r)
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return statements
}

// isCommentOnly 判断语句块是否只含 SQL 行注释。
func isCommentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
