package catalog

type Course struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Slug            string   `json:"slug"`
	Description     string   `json:"description,omitempty"`
	OriginalPrice   *float64 `json:"original_price,omitempty"`
	DiscountedPrice *float64 `json:"discounted_price,omitempty"`
	IsActive        bool     `json:"is_active"`
}

// Item is one lesson/video entry in a course schedule.
type Item struct {
	ID            string `json:"id"`
	CourseID      string `json:"course_id"`
	DayLabel      string `json:"day_label,omitempty"`
	Title         string `json:"title"`
	VideoURL      string `json:"video_url,omitempty"`
	DurationLabel string `json:"duration,omitempty"`
	Position      int    `json:"position"`
	IsActive      bool   `json:"is_active"`
}

type Brochure struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	BlobKey  string `json:"-"`
}

// Access is the grant allowing one user to consume one course.
type Access struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	IsActive bool   `json:"is_active"`
}
