package pdfdoc

import "fmt"

// DecoratorContext is everything a header or footer may print. It is passed
// by value so decorators cannot share state between pages.
type DecoratorContext struct {
	Title       string
	OrgName     string
	HeaderText  string
	FooterText  string
	Generated   string
	PageNumbers bool
	SkipFirst   bool // first page is a cover
	Labels      Labels
}

// Band is a single line of page decoration
type Band struct {
	Left   string
	Center string
	Right  string
}

// Decorator returns the band for a page, or nil to leave it blank.
// pageCount is 0 while the total is not yet known.
type Decorator func(page, pageCount int, ctx DecoratorContext) *Band

// HeaderDecorator prints the header text (or title) and the organization
func HeaderDecorator(page, pageCount int, ctx DecoratorContext) *Band {
	if ctx.SkipFirst && page == 1 {
		return nil
	}
	left := ctx.HeaderText
	if left == "" {
		left = ctx.Title
	}
	return &Band{Left: left, Right: ctx.OrgName}
}

// FooterDecorator prints the footer text and optional page numbers
func FooterDecorator(page, pageCount int, ctx DecoratorContext) *Band {
	if ctx.SkipFirst && page == 1 {
		return nil
	}
	band := &Band{Left: ctx.FooterText, Center: ctx.Generated}
	if band.Left == "" {
		band.Left = ctx.OrgName
	}
	if ctx.PageNumbers {
		if pageCount > 0 {
			band.Right = fmt.Sprintf(ctx.Labels.PageOf, page, pageCount)
		} else {
			band.Right = fmt.Sprintf(ctx.Labels.Page, page)
		}
	}
	return band
}
