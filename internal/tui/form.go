package tui

import (
	"strings"

	"github.com/bunchhieng/travelog/internal/editor"
	"github.com/bunchhieng/travelog/internal/model"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	fieldTitle = iota
	fieldStory
	fieldLocations
	fieldDate
	fieldImage
	fieldCount
)

// storyForm is the editor overlay: one widget per editable field, backed
// by an editor.Editor that owns validation and saving.
type storyForm struct {
	editor    *editor.Editor
	title     textinput.Model
	story     textarea.Model
	locations textinput.Model
	date      textinput.Model
	image     textinput.Model
	focused   int
	err       string
}

func newStoryForm(ed *editor.Editor, width int) *storyForm {
	f := &storyForm{editor: ed}

	f.title = textinput.New()
	f.title.Placeholder = "A day at the Great Wall"
	f.title.CharLimit = 200

	f.story = textarea.New()
	f.story.Placeholder = "Your story"
	f.story.CharLimit = 0
	f.story.SetHeight(8)
	f.story.ShowLineNumbers = false

	f.locations = textinput.New()
	f.locations.Placeholder = "Beijing, China"

	f.date = textinput.New()
	f.date.Placeholder = "YYYY-MM-DD (today)"
	f.date.CharLimit = 10

	f.image = textinput.New()
	f.image.Placeholder = "path to an image file"

	form := ed.Form()
	f.title.SetValue(form.Title)
	f.story.SetValue(form.Story)
	f.locations.SetValue(strings.Join(form.Locations, ", "))
	f.date.SetValue(formatInputDate(form.VisitedDate))
	f.image.SetValue(imageValue(form.Image))
	for _, in := range []*textinput.Model{&f.title, &f.locations, &f.date, &f.image} {
		in.CursorEnd()
	}

	f.resize(width)
	return f
}

func imageValue(img editor.Image) string {
	if img.IsLocal() {
		return img.Path
	}
	return img.URL
}

func (f *storyForm) resize(width int) {
	w := max(width-8, 20)
	f.title.Width = w
	f.locations.Width = w
	f.date.Width = w
	f.image.Width = w
	f.story.SetWidth(w)
}

func (f *storyForm) focus() tea.Cmd {
	f.title.Blur()
	f.story.Blur()
	f.locations.Blur()
	f.date.Blur()
	f.image.Blur()
	switch f.focused {
	case fieldStory:
		return f.story.Focus()
	case fieldLocations:
		return f.locations.Focus()
	case fieldDate:
		return f.date.Focus()
	case fieldImage:
		return f.image.Focus()
	default:
		return f.title.Focus()
	}
}

func (f *storyForm) next(step int) tea.Cmd {
	f.focused = (f.focused + step + fieldCount) % fieldCount
	return f.focus()
}

func (f *storyForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch f.focused {
	case fieldStory:
		f.story, cmd = f.story.Update(msg)
	case fieldLocations:
		f.locations, cmd = f.locations.Update(msg)
	case fieldDate:
		f.date, cmd = f.date.Update(msg)
	case fieldImage:
		f.image, cmd = f.image.Update(msg)
	default:
		f.title, cmd = f.title.Update(msg)
	}
	return cmd
}

// apply copies the widget values into the editor.
func (f *storyForm) apply() error {
	form := f.editor.Form()
	form.Title = f.title.Value()
	form.Story = f.story.Value()
	form.Locations = model.ParseLocations(f.locations.Value())

	if f.date.Value() != formatInputDate(form.VisitedDate) {
		date, err := parseInputDate(f.date.Value())
		if err != nil {
			return err
		}
		form.VisitedDate = date
	}

	img := strings.TrimSpace(f.image.Value())
	switch {
	case img == "":
		form.Image = editor.Image{}
	case img == form.Image.URL:
		// unchanged stored image
	default:
		form.Image = editor.Image{Path: img}
	}
	f.editor.SetForm(form)
	return nil
}

// syncImage shows the editor's image after a removal.
func (f *storyForm) syncImage() {
	f.image.SetValue(imageValue(f.editor.Form().Image))
}
