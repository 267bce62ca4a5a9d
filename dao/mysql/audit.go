package mysql

// AuditRecord 每次生成请求的审计索引行，对象本体在 S3，
// 这里只记录键名与结果状态，便于检索。只插入，不更新不删除。
type AuditRecord struct {
	ID          int64  `db:"id" json:"id"`
	TaskType    string `db:"task_type" json:"task_type"`
	Quality     string `db:"quality" json:"quality"`
	Status      string `db:"status" json:"status"` // completed / failed
	ResponseKey string `db:"response_key" json:"response_key"`
	ImageKey    string `db:"image_key" json:"image_key"`
	CreatedAt   string `db:"created_at" json:"created_at"`
}

// InsertAuditRecord 追加一条审计索引
func InsertAuditRecord(rec *AuditRecord) error {
	sqlStr := `INSERT INTO audit_records (task_type, quality, status, response_key, image_key, created_at)
	           VALUES (?, ?, ?, ?, ?, NOW())`
	_, err := Db.Exec(sqlStr, rec.TaskType, rec.Quality, rec.Status, rec.ResponseKey, rec.ImageKey)
	return err
}

// RecentAuditRecords 按时间倒序取最近 n 条审计索引
func RecentAuditRecords(n int) ([]AuditRecord, error) {
	records := []AuditRecord{}
	sqlStr := `SELECT id, task_type, quality, status, response_key, image_key, created_at
	           FROM audit_records ORDER BY id DESC LIMIT ?`
	err := Db.Select(&records, sqlStr, n)
	return records, err
}
