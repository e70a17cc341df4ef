package profile

import (
	"context"
	"fmt"
	"strings"
)

// ImageMode selects which input supplies a profile image.
type ImageMode string

const (
	ImageModeURL  ImageMode = "url"
	ImageModeFile ImageMode = "file"
)

// Form is the editable state behind the admin profile form. Every field is a
// plain string so it always has a defined value to bind to; list fields are
// comma separated.
type Form struct {
	ID             string    `json:"id" form:"id"`
	Name           string    `json:"name" form:"name"`
	Email          string    `json:"email" form:"email"`
	Phone          string    `json:"phone" form:"phone"`
	Role           Role      `json:"role" form:"role"`
	Department     string    `json:"department" form:"department"`
	YearOrPosition string    `json:"yearOrPosition" form:"yearOrPosition"`
	Summary        string    `json:"summary" form:"summary"`
	Skills         string    `json:"skills" form:"skills"`
	Projects       string    `json:"projects" form:"projects"`
	Publications   string    `json:"publications" form:"publications"`
	Location       string    `json:"location" form:"location"`
	ImageMode      ImageMode `json:"imageMode" form:"imageMode"`
	ImageURL       string    `json:"imageUrl" form:"imageUrl"`
	// ImageData holds the chosen file as a data URL while in file mode.
	ImageData string `json:"imageData" form:"imageData"`
}

// EmptyForm is the state of a fresh "add profile" form.
func EmptyForm() Form {
	return Form{Role: RoleStudent, ImageMode: ImageModeURL}
}

// Hydrate fills a form from a stored profile.
func Hydrate(p Profile) Form {
	f := Form{
		ID:             p.ID,
		Name:           p.Name,
		Email:          p.Email,
		Phone:          p.Phone,
		Role:           p.Role,
		Department:     p.Department,
		YearOrPosition: p.YearOrPosition,
		Summary:        p.Summary,
		Skills:         JoinList(p.Skills),
		Projects:       JoinList(p.Projects),
		Publications:   JoinList(p.Publications),
		Location:       p.Location,
		ImageMode:      ImageModeURL,
	}
	if f.Role == "" {
		f.Role = RoleStudent
	}
	switch p.Image.Kind {
	case ImageInline:
		f.ImageMode = ImageModeFile
		f.ImageData = p.Image.String()
	case ImageURL:
		f.ImageURL = p.Image.URL
	}
	return f
}

// AttachFile switches the form to file mode with the given image bytes.
func (f *Form) AttachFile(data []byte, contentType string) {
	f.ImageMode = ImageModeFile
	f.ImageData = InlineImage(data, contentType).String()
}

// Image returns the value of whichever image mode is selected.
func (f Form) Image() (Image, error) {
	switch f.ImageMode {
	case ImageModeURL, "":
		return URLImage(f.ImageURL), nil
	case ImageModeFile:
		if strings.TrimSpace(f.ImageData) == "" {
			return Image{}, nil
		}
		img := ParseImage(f.ImageData)
		if img.Kind != ImageInline {
			return Image{}, fmt.Errorf("%w: image file is not a base64 data url", ErrValidation)
		}
		return img, nil
	}
	return Image{}, fmt.Errorf("%w: unknown image mode %q", ErrValidation, f.ImageMode)
}

// Profile converts the form into a validated profile. The id is left empty
// for new profiles.
func (f Form) Profile() (Profile, error) {
	img, err := f.Image()
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		ID:             strings.TrimSpace(f.ID),
		Name:           strings.TrimSpace(f.Name),
		Email:          strings.TrimSpace(f.Email),
		Phone:          strings.TrimSpace(f.Phone),
		Role:           f.Role,
		Department:     strings.TrimSpace(f.Department),
		YearOrPosition: strings.TrimSpace(f.YearOrPosition),
		Summary:        strings.TrimSpace(f.Summary),
		Skills:         SplitList(f.Skills),
		Projects:       SplitList(f.Projects),
		Publications:   SplitList(f.Publications),
		Image:          img,
		Location:       strings.TrimSpace(f.Location),
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// SplitList turns "a, b,,c " into ["a" "b" "c"].
func SplitList(s string) []string {
	res := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}

func JoinList(items []string) string { return strings.Join(items, ", ") }

// Saver stores a profile, returning the persisted record.
type Saver interface {
	Save(ctx context.Context, p Profile) (Profile, error)
}

// Saved is the outcome of a successful submit. Refresh asks the caller to
// reload its view of the collection.
type Saved struct {
	Profile Profile `json:"profile"`
	Refresh bool    `json:"refresh"`
}

// Workflow drives the admin add/edit form: pick a record or start empty,
// submit, and go back to the empty form after a save.
type Workflow struct {
	saver Saver
	ids   *IDGenerator
	form  Form
}

func NewWorkflow(saver Saver) *Workflow {
	return &Workflow{saver: saver, ids: defaultIDs, form: EmptyForm()}
}

// Form returns the current working state.
func (w *Workflow) Form() Form { return w.form }

// Select loads the profile with id from existing. An empty id resets the
// form. It reports whether a profile was loaded.
func (w *Workflow) Select(existing []Profile, id string) bool {
	if id == "" {
		w.Reset()
		return false
	}
	for _, p := range existing {
		if p.ID == id {
			w.form = Hydrate(p)
			return true
		}
	}
	return false
}

func (w *Workflow) Reset() { w.form = EmptyForm() }

// Submit validates f, assigns an id to new profiles and saves. On failure the
// working state keeps f so it can be corrected and resubmitted.
func (w *Workflow) Submit(ctx context.Context, f Form) (Saved, error) {
	w.form = f
	p, err := f.Profile()
	if err != nil {
		return Saved{}, err
	}
	if p.ID == "" {
		p.ID = w.ids.Next()
	}
	stored, err := w.saver.Save(ctx, p)
	if err != nil {
		return Saved{}, err
	}
	w.Reset()
	return Saved{Profile: stored, Refresh: true}, nil
}
