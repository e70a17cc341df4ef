package profile

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Role is the directory category a profile belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleStaff   Role = "staff"
)

// Roles lists every accepted role in display order.
var Roles = []Role{RoleStudent, RoleTeacher, RoleStaff}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleStaff:
		return true
	}
	return false
}

// Profile is a directory entry for one student, teacher or staff member.
type Profile struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Role           Role      `json:"role"`
	Department     string    `json:"department"`
	YearOrPosition string    `json:"yearOrPosition"`
	Summary        string    `json:"summary,omitempty"`
	Skills         []string  `json:"skills"`
	Projects       []string  `json:"projects"`
	Publications   []string  `json:"publications"`
	Image          Image     `json:"image,omitzero"`
	Location       string    `json:"location,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero"`
}

// normalize materializes the list fields so callers never see nil slices.
func (p Profile) normalize() Profile {
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Projects == nil {
		p.Projects = []string{}
	}
	if p.Publications == nil {
		p.Publications = []string{}
	}
	return p
}

// listField decodes a stored list leniently: anything that is not a JSON
// array becomes an empty list and non-string elements are dropped.
type listField []string

func (l *listField) UnmarshalJSON(b []byte) error {
	*l = listField{}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	for _, raw := range items {
		var s *string
		if json.Unmarshal(raw, &s) == nil && s != nil {
			*l = append(*l, *s)
		}
	}
	return nil
}

// storedProfile is the on-disk record shape. Its list fields shadow the
// embedded ones so that legacy records still load.
type storedProfile struct {
	profileFields
	Skills       listField `json:"skills"`
	Projects     listField `json:"projects"`
	Publications listField `json:"publications"`
}

type profileFields Profile

func (s storedProfile) profile() Profile {
	p := Profile(s.profileFields)
	p.Skills = []string(s.Skills)
	p.Projects = []string(s.Projects)
	p.Publications = []string(s.Publications)
	return p.normalize()
}

// Validate checks the fields a profile cannot be stored without.
func (p Profile) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, p.Role)
	}
	return nil
}

// ImageKind tells which variant an Image carries.
type ImageKind int

const (
	ImageNone ImageKind = iota
	ImageURL
	ImageInline
)

// Image is either a hosted URL or inline image bytes that travel as a
// base64 data URL.
type Image struct {
	Kind        ImageKind
	URL         string
	Data        []byte
	ContentType string
}

// URLImage references an externally hosted image.
func URLImage(u string) Image {
	u = strings.TrimSpace(u)
	if u == "" {
		return Image{}
	}
	return Image{Kind: ImageURL, URL: u}
}

// InlineImage embeds raw image bytes. The content type is sniffed when empty.
func InlineImage(data []byte, contentType string) Image {
	if len(data) == 0 {
		return Image{}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return Image{Kind: ImageInline, Data: data, ContentType: contentType}
}

// ParseImage decodes the stored string form of an image.
func ParseImage(s string) Image {
	s = strings.TrimSpace(s)
	if s == "" {
		return Image{}
	}
	if strings.HasPrefix(s, "data:") {
		if img, err := parseDataURL(s); err == nil {
			return img
		}
	}
	return Image{Kind: ImageURL, URL: s}
}

func parseDataURL(s string) (Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return Image{}, fmt.Errorf("data url without payload")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Image{}, fmt.Errorf("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode data url: %w", err)
	}
	return InlineImage(data, contentType), nil
}

// IsZero reports whether no image is set.
func (i Image) IsZero() bool { return i.Kind == ImageNone }

// String renders the image the way it is stored and sent to clients.
func (i Image) String() string {
	switch i.Kind {
	case ImageURL:
		return i.URL
	case ImageInline:
		return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
	}
	return ""
}

func (i Image) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Image) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("image must be a string: %w", err)
	}
	if s == nil {
		*i = Image{}
		return nil
	}
	*i = ParseImage(*s)
	return nil
}
