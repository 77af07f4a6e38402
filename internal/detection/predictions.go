package detection

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"
)

// readPredictions loads the prediction file batdetect2 wrote for one staged
// input. The tool names it after the input file, with or without the audio
// extension depending on version.
func readPredictions(outDir, stagedName string) ([]Detection, error) {
	candidates := []string{
		filepath.Join(outDir, stagedName+".json"),
		filepath.Join(outDir, strings.TrimSuffix(stagedName, filepath.Ext(stagedName))+".json"),
	}

	var data []byte
	var err error
	for _, p := range candidates {
		data, err = os.ReadFile(p) //nolint:gosec // path inside our own staging directory
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no predictions produced for %s", stagedName)
	}

	return parsePredictions(data)
}

// parsePredictions decodes the "annotation" list of a prediction document.
func parsePredictions(data []byte) ([]Detection, error) {
	doc, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("invalid prediction file: %w", err)
	}

	annotations, err := doc.GetObjectArray("annotation")
	if err != nil {
		return nil, fmt.Errorf("prediction file has no annotation list: %w", err)
	}

	detections := make([]Detection, 0, len(annotations))
	for i, ann := range annotations {
		d, err := parseAnnotation(ann)
		if err != nil {
			return nil, fmt.Errorf("annotation %d: %w", i, err)
		}
		detections = append(detections, d)
	}
	return detections, nil
}

func parseAnnotation(ann *jason.Object) (Detection, error) {
	var d Detection
	var err error

	if d.Class, err = ann.GetString("class"); err != nil {
		return d, fmt.Errorf("class: %w", err)
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"start_time", &d.StartTime},
		{"end_time", &d.EndTime},
		{"low_freq", &d.LowFreq},
		{"high_freq", &d.HighFreq},
		{"class_prob", &d.ClassProb},
		{"det_prob", &d.DetProb},
	}
	for _, f := range floats {
		if *f.dst, err = numberField(ann, f.key); err != nil {
			return d, err
		}
	}

	d.Individual = textField(ann, "individual")
	d.Event = textField(ann, "event")
	return d, nil
}

// numberField reads a numeric field that may also be encoded as a string.
// A missing or null field reads as zero.
func numberField(obj *jason.Object, key string) (float64, error) {
	v, err := obj.GetValue(key)
	if err != nil || v.Null() == nil {
		return 0, nil
	}
	if n, err := v.Float64(); err == nil {
		return n, nil
	}
	if s, err := v.String(); err == nil {
		n, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr != nil {
			return 0, fmt.Errorf("%s: %w", key, perr)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s: not a number", key)
}

// textField reads a string or number field as text; missing or null is empty.
func textField(obj *jason.Object, key string) string {
	v, err := obj.GetValue(key)
	if err != nil {
		return ""
	}
	if s, err := v.String(); err == nil {
		return s
	}
	if n, err := v.Number(); err == nil {
		return n.String()
	}
	return ""
}
