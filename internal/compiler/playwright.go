// Package compiler turns an action sequence into a Playwright (Node.js) script.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/locator"
)

const preamble = `const { chromium } = require('playwright');

(async () => {
  const browser = await chromium.launch();
  const page = await browser.newPage();
  await page.goto(%s);

`

const closing = `
  await browser.close();
})();
`

// Compile renders one script line per action between a fixed preamble and
// closing block. It never fails: unknown kinds become comment lines.
func Compile(actions []action.Action, origin string) string {
	var b strings.Builder
	fmt.Fprintf(&b, preamble, quote(origin))

	paired := pairDrags(actions)
	for i, a := range actions {
		b.WriteString("  ")
		b.WriteString(line(i, a, actions, paired))
		b.WriteByte('\n')
	}

	b.WriteString(closing)
	return b.String()
}

// pairDrags maps each dragStart index to the first later drop coming from
// the same element, and marks those drops as consumed.
func pairDrags(actions []action.Action) map[int]int {
	paired := map[int]int{}
	used := map[int]bool{}
	for i, a := range actions {
		if _, ok := a.Step.(action.DragStart); !ok {
			continue
		}
		for j := i + 1; j < len(actions); j++ {
			d, ok := actions[j].Step.(action.Drop)
			if ok && !used[j] && d.Source == a.Locator {
				paired[i], used[j] = j, true
				break
			}
		}
	}
	return paired
}

func consumed(paired map[int]int, drop int) bool {
	for _, j := range paired {
		if j == drop {
			return true
		}
	}
	return false
}

func line(i int, a action.Action, actions []action.Action, paired map[int]int) string {
	sel := selector(a.Locator)

	switch s := a.Step.(type) {
	case action.Click:
		return fmt.Sprintf("await page.click(%s);", sel)
	case action.Input:
		return fmt.Sprintf("await page.fill(%s, %s);", sel, quote(s.Value))
	case action.Hover:
		return fmt.Sprintf("await page.hover(%s);", sel)
	case action.DragStart:
		j, ok := paired[i]
		if !ok {
			return fmt.Sprintf("// dragStart on %s has no matching drop", a.Locator)
		}
		return fmt.Sprintf("await page.dragAndDrop(%s, %s);", sel, selector(actions[j].Locator))
	case action.Drop:
		if consumed(paired, i) {
			return fmt.Sprintf("// drop onto %s performed by dragAndDrop above", a.Locator)
		}
		return fmt.Sprintf("await page.dragAndDrop(%s, %s);", selector(s.Source), sel)
	case action.Select:
		return fmt.Sprintf("await page.selectOption(%s, %s);", sel, quote(s.Value))
	case action.FileUpload:
		files := make([]string, len(s.Files))
		for k, f := range s.Files {
			files[k] = fmt.Sprintf("{ name: %s, mimeType: %s, buffer: Buffer.from('') }", quote(f.Name), quote(f.Type))
		}
		return fmt.Sprintf("await page.setInputFiles(%s, [%s]);", sel, strings.Join(files, ", "))
	case action.Navigate:
		return fmt.Sprintf("await page.goto(%s);", quote(s.URL))
	case action.Back:
		return "await page.goBack();"
	case action.Forward:
		return "await page.goForward();"
	case action.Refresh:
		return "await page.reload();"
	case action.WaitForElement:
		return fmt.Sprintf("await page.waitForSelector(%s);", sel)
	case action.WaitForNavigation:
		return "await page.waitForLoadState('load');"
	case action.WaitForTimeout:
		return fmt.Sprintf("await page.waitForTimeout(%d);", s.Duration.Milliseconds())
	case action.Assert:
		return assertion(a.Locator, s)
	case action.Scroll:
		return fmt.Sprintf("await page.evaluate(() => window.scrollTo(%s, %s));", number(s.X), number(s.Y))
	case action.Screenshot:
		path := quote(fmt.Sprintf("step-%d.png", i+1))
		if a.Locator.IsZero() || a.Locator.Type == locator.Window {
			return fmt.Sprintf("await page.screenshot({ path: %s });", path)
		}
		return fmt.Sprintf("await page.locator(%s).screenshot({ path: %s });", sel, path)
	case action.ExecuteScript:
		return fmt.Sprintf("await page.evaluate(%s);", quote(s.Script))
	case action.KeyPress:
		key := s.Key
		if key == "" {
			key = s.Code
		}
		if a.Locator.Type == locator.Window {
			return fmt.Sprintf("await page.keyboard.press(%s);", quote(key))
		}
		return fmt.Sprintf("await page.press(%s, %s);", sel, quote(key))
	default:
		return fmt.Sprintf("// Unsupported action type: %s", oneLine(string(a.Kind())))
	}
}

func assertion(loc locator.Locator, s action.Assert) string {
	sel := selector(loc)
	switch s.Condition {
	case action.Visible:
		msg := quote(fmt.Sprintf("assertion failed: %s should be visible", loc))
		return fmt.Sprintf("if (!(await page.isVisible(%s))) throw new Error(%s);", sel, msg)
	case action.TextEquals:
		want := strings.Join(strings.Fields(s.Expected), " ")
		msg := quote(fmt.Sprintf("assertion failed: %s text should equal %q", loc, want))
		return fmt.Sprintf("if (((await page.textContent(%s)) ?? '').replace(/\\s+/g, ' ').trim() !== %s) throw new Error(%s);", sel, quote(want), msg)
	default:
		msg := quote(fmt.Sprintf("assertion failed: %s should exist", loc))
		return fmt.Sprintf("if ((await page.locator(%s).count()) === 0) throw new Error(%s);", sel, msg)
	}
}

// selector renders a locator in Playwright selector syntax
func selector(l locator.Locator) string {
	switch l.Type {
	case locator.XPath:
		return quote("xpath=" + l.Value)
	case locator.Window:
		return quote("html")
	default:
		return quote(l.Value)
	}
}

var jsEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// quote renders s as a single-quoted JavaScript string literal
func quote(s string) string {
	return "'" + jsEscaper.Replace(s) + "'"
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
