package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

const receiptColumns = `id, source_file, file_ext, vendor_code, source_type, layout_name, parsed_by,
	extraction_path, subtotal, tax, total, item_count, needs_review, review_reasons, processed_at`

// SaveReceipt stores a receipt and its items. A receipt with the same content
// hash as a stored one is rejected with common.ErrDuplicateEntry.
func (s *SQLiteStorage) SaveReceipt(ctx context.Context, r *model.Receipt) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReceipt(r); err != nil {
		return err
	}

	return common.WithRetry(ctx, func() error {
		return classify(s.saveReceipt(ctx, r))
	}, s.retry)
}

func (s *SQLiteStorage) saveReceipt(ctx context.Context, r *model.Receipt) error {
	reasons, err := json.Marshal(r.ReviewReasons)
	if err != nil {
		return fmt.Errorf("failed to marshal review reasons: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (`+receiptColumns+`, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.SourceFile, r.FileExt, r.VendorCode, r.DetectedSourceType, r.LayoutName, r.ParsedBy,
		r.ExtractionPath, r.Subtotal, r.Tax, r.Total, r.ItemCount, r.NeedsReview, string(reasons),
		r.ProcessedAt.UTC(), r.GenerateHash(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO line_items (
			receipt_id, position, name, item_number, upc, quantity, unit_price, total_price,
			raw_uom_text, raw_size_text, parsed_by, l1_code, l1_name, l2_code, l2_name,
			category_source, rule_id, confidence, needs_review, source_lines,
			hint_source, hint_department, hint_aisle
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range r.Items {
		li := &r.Items[i]
		lines, err := json.Marshal(li.SourceLines)
		if err != nil {
			return fmt.Errorf("failed to marshal source lines: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, i, li.Name, li.ItemNumber, li.UPC, li.Quantity, li.UnitPrice, li.TotalPrice,
			li.RawUOMText, li.RawSizeText, li.ParsedBy, li.L1Code, li.L1Name, li.L2Code, li.L2Name,
			li.CategorySource, li.RuleID, li.Confidence, li.NeedsCategoryReview, string(lines),
			li.Hint.Source, li.Hint.Department, li.Hint.Aisle,
		); err != nil {
			return fmt.Errorf("failed to insert line item %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetReceipt returns a stored receipt with its items.
func (s *SQLiteStorage) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if r.Items, err = s.loadItems(ctx, r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

// ListReceiptsNeedingReview returns receipts flagged for review, or holding
// items whose category needs review, newest first. A limit of zero returns all.
func (s *SQLiteStorage) ListReceiptsNeedingReview(ctx context.Context, limit int) ([]model.Receipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts r
		WHERE r.needs_review = 1
		   OR EXISTS (SELECT 1 FROM line_items li WHERE li.receipt_id = r.id AND li.needs_review = 1)
		ORDER BY r.processed_at DESC, r.source_file`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var receipts []model.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	// Items are loaded after the cursor closes; the pool has one connection.
	_ = rows.Close()

	for i := range receipts {
		if receipts[i].Items, err = s.loadItems(ctx, receipts[i].ID); err != nil {
			return nil, err
		}
	}
	return receipts, nil
}

// CategoryTotals sums item totals by level-1 and level-2 category.
func (s *SQLiteStorage) CategoryTotals(ctx context.Context) ([]service.CategoryTotal, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(l1_code, ''), COALESCE(l1_name, ''), COALESCE(l2_code, ''), COALESCE(l2_name, ''),
		       COUNT(*), COALESCE(SUM(total_price), 0)
		FROM line_items
		GROUP BY l1_code, l1_name, l2_code, l2_name
		ORDER BY l1_code, l2_code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var totals []service.CategoryTotal
	for rows.Next() {
		var t service.CategoryTotal
		if err := rows.Scan(&t.L1Code, &t.L1Name, &t.L2Code, &t.L2Name, &t.Items, &t.Total); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (*model.Receipt, error) {
	var (
		r                                                          model.Receipt
		fileExt, vendor, sourceType, layoutName, path, reasonsJSON sql.NullString
	)
	err := row.Scan(&r.ID, &r.SourceFile, &fileExt, &vendor, &sourceType, &layoutName, &r.ParsedBy,
		&path, &r.Subtotal, &r.Tax, &r.Total, &r.ItemCount, &r.NeedsReview, &reasonsJSON, &r.ProcessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}

	r.FileExt = fileExt.String
	r.VendorCode = vendor.String
	r.DetectedSourceType = sourceType.String
	r.LayoutName = layoutName.String
	r.ExtractionPath = path.String
	if reasonsJSON.Valid && reasonsJSON.String != "" && reasonsJSON.String != "null" {
		if err := json.Unmarshal([]byte(reasonsJSON.String), &r.ReviewReasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review reasons: %w", err)
		}
	}
	return &r, nil
}

func (s *SQLiteStorage) loadItems(ctx context.Context, receiptID string) ([]model.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COALESCE(item_number, ''), COALESCE(upc, ''), quantity, unit_price, total_price,
		       COALESCE(raw_uom_text, ''), COALESCE(raw_size_text, ''), COALESCE(parsed_by, ''),
		       COALESCE(l1_code, ''), COALESCE(l1_name, ''), COALESCE(l2_code, ''), COALESCE(l2_name, ''),
		       COALESCE(category_source, ''), COALESCE(rule_id, ''), confidence, needs_review,
		       COALESCE(source_lines, ''), COALESCE(hint_source, ''), COALESCE(hint_department, ''),
		       COALESCE(hint_aisle, '')
		FROM line_items
		WHERE receipt_id = ?
		ORDER BY position
	`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.LineItem
	for rows.Next() {
		var (
			li    model.LineItem
			lines string
		)
		if err := rows.Scan(&li.Name, &li.ItemNumber, &li.UPC, &li.Quantity, &li.UnitPrice, &li.TotalPrice,
			&li.RawUOMText, &li.RawSizeText, &li.ParsedBy, &li.L1Code, &li.L1Name, &li.L2Code, &li.L2Name,
			&li.CategorySource, &li.RuleID, &li.Confidence, &li.NeedsCategoryReview,
			&lines, &li.Hint.Source, &li.Hint.Department, &li.Hint.Aisle); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		if lines != "" && lines != "null" {
			if err := json.Unmarshal([]byte(lines), &li.SourceLines); err != nil {
				return nil, fmt.Errorf("failed to unmarshal source lines: %w", err)
			}
		}
		items = append(items, li)
	}
	return items, rows.Err()
}
