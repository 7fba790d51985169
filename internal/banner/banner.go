// MIT License
//
// Copyright (c) 2026 jnakagawa
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package banner

import (
	"fmt"

	"github.com/jnakagawa/loggy/internal/version"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

func Print(proxyPort, apiPort int) {
	ptermLogo, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithRGB("Log", pterm.NewRGB(255, 179, 71)),
		putils.LettersFromStringWithRGB("gy", pterm.NewRGB(92, 64, 51))).
		Srender()

	pterm.DefaultCenter.Print(ptermLogo)

	pterm.DefaultCenter.Print(
		pterm.DefaultHeader.
			WithFullWidth().
			WithBackgroundStyle(pterm.NewStyle(pterm.BgLightYellow)).
			WithMargin(5).
			Sprint(pterm.Black("🪵 Loggy Proxy - Analytics Event Interception")),
	)

	pterm.Info.Println(
		"Intercepting HTTPS proxy for analytics traffic." +
			fmt.Sprintf("\nMITM proxy on :%d, control API on :%d.", proxyPort, apiPort) +
			fmt.Sprintf("\nVersion %s. Press Ctrl+C to stop.", version.Version),
	)
}
