package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpsertCourse creates or updates a course keyed by slug.
func (s *SQLStore) UpsertCourse(ctx context.Context, c Course) (Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (id, name, slug, description, original_price, discounted_price, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (slug) DO UPDATE
		   SET name=EXCLUDED.name,
		       description=EXCLUDED.description,
		       original_price=EXCLUDED.original_price,
		       discounted_price=EXCLUDED.discounted_price,
		       is_active=EXCLUDED.is_active`,
		c.ID, c.Name, c.Slug, c.Description, c.OriginalPrice, c.DiscountedPrice,
		c.IsActive, time.Now().Unix())
	if err != nil {
		return Course{}, err
	}

	var out Course
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, original_price, discounted_price, is_active
		  FROM courses WHERE slug=$1`, c.Slug,
	).Scan(&out.ID, &out.Name, &out.Slug, &out.Description,
		&out.OriginalPrice, &out.DiscountedPrice, &out.IsActive)
	return out, err
}

// UpsertItem creates or updates one lesson entry.
func (s *SQLStore) UpsertItem(ctx context.Context, it Item) (Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_items (id, course_id, day_label, title, video_url, duration_label, position, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE
		   SET day_label=EXCLUDED.day_label,
		       title=EXCLUDED.title,
		       video_url=EXCLUDED.video_url,
		       duration_label=EXCLUDED.duration_label,
		       position=EXCLUDED.position,
		       is_active=EXCLUDED.is_active`,
		it.ID, it.CourseID, it.DayLabel, it.Title, it.VideoURL,
		it.DurationLabel, it.Position, it.IsActive)
	return it, err
}

// UpsertBrochure registers (or replaces) the single active brochure of
// a course, pointing at an already-stored blob.
func (s *SQLStore) UpsertBrochure(ctx context.Context, b Brochure) (Brochure, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Brochure{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE course_brochures SET is_active=FALSE WHERE course_id=$1`, b.CourseID)
	if err != nil {
		return Brochure{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO course_brochures (id, course_id, title, blob_key, is_active)
		VALUES ($1,$2,$3,$4,TRUE)
		ON CONFLICT (id) DO UPDATE
		   SET title=EXCLUDED.title, blob_key=EXCLUDED.blob_key, is_active=TRUE`,
		b.ID, b.CourseID, b.Title, b.BlobKey)
	if err != nil {
		return Brochure{}, err
	}
	return b, tx.Commit()
}
