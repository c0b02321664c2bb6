package banner

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

func Print() {
	ptermLogo, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithRGB("Drain", pterm.NewRGB(94, 114, 235)),
		putils.LettersFromStringWithRGB("Watch", pterm.NewRGB(0, 0, 0))).
		Srender()

	pterm.DefaultCenter.Print(ptermLogo)

	pterm.DefaultCenter.Print(
		pterm.DefaultHeader.
			WithFullWidth().
			WithBackgroundStyle(pterm.NewStyle(pterm.BgLightBlue)).
			WithMargin(5).
			Sprint(pterm.White("DrainWatch - Heroku Log Drain Error Reporting")),
	)

	pterm.Info.Println(
		"Watches your Heroku log drains for request timeouts and dyno errors" +
			"\nand reports them to the right place before your users do." +
			"\nVersion 0.0.1.",
	)
}
