package publisher

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/specialistvlad/gridci/internal/model"
)

type junitCase struct {
	Failures []struct{} `xml:"failure"`
	Errors   []struct{} `xml:"error"`
	Skipped  []struct{} `xml:"skipped"`
}

type junitSuite struct {
	Suites []junitSuite `xml:"testsuite"`
	Cases  []junitCase  `xml:"testcase"`
}

// tally counts test cases recursively so nested suites and <testsuites>
// roots are handled the same way.
func (s junitSuite) tally(sum map[string]int) {
	for _, c := range s.Cases {
		sum["tests"]++
		switch {
		case len(c.Failures) > 0:
			sum["failures"]++
		case len(c.Errors) > 0:
			sum["errors"]++
		case len(c.Skipped) > 0:
			sum["skipped"]++
		}
	}
	for _, child := range s.Suites {
		child.tally(sum)
	}
}

func decodeXML(workspace, rel string, v any) error {
	data, err := os.ReadFile(filepath.Join(workspace, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedReport, rel, err)
	}
	return nil
}

func testResults(t Target, p model.ArchiveTestResults, files []string, out *Outcome) error {
	if len(files) == 0 && !p.AllowEmpty {
		return ErrNoMatch
	}

	sum := map[string]int{"tests": 0, "failures": 0, "errors": 0, "skipped": 0}
	for _, rel := range files {
		var root junitSuite
		if err := decodeXML(t.Workspace, rel, &root); err != nil {
			return err
		}
		root.tally(sum)
	}
	out.Reports = append(out.Reports, model.Report{Kind: p.Kind(), Files: files, Summary: sum})

	if broken := sum["failures"] + sum["errors"]; broken > 0 && !p.AllowFailures {
		return fmt.Errorf("%w: %d of %d tests failed", ErrTestFailures, broken, sum["tests"])
	}
	return nil
}

type checkstyleReport struct {
	Files []struct {
		Errors []struct {
			Severity string `xml:"severity,attr"`
		} `xml:"error"`
	} `xml:"file"`
}

type pmdReport struct {
	Files []struct {
		Violations []struct {
			Priority int `xml:"priority,attr"`
		} `xml:"violation"`
	} `xml:"file"`
}

type findbugsReport struct {
	Bugs []struct {
		Priority int `xml:"priority,attr"`
	} `xml:"BugInstance"`
}

// analysis counts issues bucketed into high, normal and low severity.
func analysis(t Target, p model.StaticAnalysisReport, files []string, out *Outcome) error {
	sum := map[string]int{"issues": 0, "high": 0, "normal": 0, "low": 0}
	add := func(bucket string) {
		sum["issues"]++
		sum[bucket]++
	}

	for _, rel := range files {
		switch p.Tool {
		case model.ToolCheckstyle:
			var r checkstyleReport
			if err := decodeXML(t.Workspace, rel, &r); err != nil {
				return err
			}
			for _, f := range r.Files {
				for _, e := range f.Errors {
					switch e.Severity {
					case "error":
						add("high")
					case "warning":
						add("normal")
					default:
						add("low")
					}
				}
			}
		case model.ToolPMD:
			var r pmdReport
			if err := decodeXML(t.Workspace, rel, &r); err != nil {
				return err
			}
			for _, f := range r.Files {
				for _, v := range f.Violations {
					switch {
					case v.Priority <= 2:
						add("high")
					case v.Priority == 3:
						add("normal")
					default:
						add("low")
					}
				}
			}
		case model.ToolFindBugs, model.ToolSpotBugs:
			var r findbugsReport
			if err := decodeXML(t.Workspace, rel, &r); err != nil {
				return err
			}
			for _, b := range r.Bugs {
				switch {
				case b.Priority <= 1:
					add("high")
				case b.Priority == 2:
					add("normal")
				default:
					add("low")
				}
			}
		default:
			return fmt.Errorf("unsupported analysis tool %q", p.Tool)
		}
	}

	out.Reports = append(out.Reports, model.Report{Kind: p.Kind(), Tool: string(p.Tool), Files: files, Summary: sum})
	if p.MaxIssues != nil && sum["issues"] > *p.MaxIssues {
		return fmt.Errorf("%w: %d issues reported, at most %d allowed", ErrThreshold, sum["issues"], *p.MaxIssues)
	}
	return nil
}

type jacocoCounter struct {
	Type    string `xml:"type,attr"`
	Missed  int    `xml:"missed,attr"`
	Covered int    `xml:"covered,attr"`
}

// jacocoReport only reads the report level counters, which aggregate every
// package in the file.
type jacocoReport struct {
	Counters []jacocoCounter `xml:"counter"`
}

func coverage(t Target, p model.CodeCoverageReport, files []string, out *Outcome) error {
	var missed, covered int
	for _, rel := range files {
		var r jacocoReport
		if err := decodeXML(t.Workspace, rel, &r); err != nil {
			return err
		}
		for _, c := range r.Counters {
			if c.Type == "LINE" {
				missed += c.Missed
				covered += c.Covered
			}
		}
	}

	var pct float64
	if total := missed + covered; total > 0 {
		pct = math.Round(float64(covered)/float64(total)*10000) / 100
	}
	out.Reports = append(out.Reports, model.Report{
		Kind:     p.Kind(),
		Tool:     "jacoco",
		Files:    files,
		Summary:  map[string]int{"lines_covered": covered, "lines_missed": missed},
		Coverage: pct,
	})

	if p.MinLineCoverage != nil && pct < *p.MinLineCoverage {
		return fmt.Errorf("%w: line coverage %s%% is below %s%%", ErrThreshold,
			strconv.FormatFloat(pct, 'f', -1, 64), strconv.FormatFloat(*p.MinLineCoverage, 'f', -1, 64))
	}
	return nil
}
