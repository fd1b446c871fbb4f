package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is a detected face in original-image pixel coordinates.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
}

// priorCount is the number of anchor boxes the RFB-320 model emits.
const priorCount = 4420

// Detector runs UltraFace (version-RFB-320) face detection via ONNX Runtime.
// The model emits per-anchor class scores and corner-form boxes normalized
// to [0,1], so decoding is a score filter plus NMS.
type Detector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	scoresTensor *ort.Tensor[float32]
	boxesTensor  *ort.Tensor[float32]
	threshold    float32
	inputW       int
	inputH       int
}

// NewDetector loads the detection ONNX model.
func NewDetector(modelPath string, threshold float32) (*Detector, error) {
	inputW, inputH := 320, 240

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	scoresTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, priorCount, 2))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create scores tensor: %w", err)
	}

	boxesTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, priorCount, 4))
	if err != nil {
		inputTensor.Destroy()
		scoresTensor.Destroy()
		return nil, fmt.Errorf("create boxes tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"scores", "boxes"},
		[]ort.Value{inputTensor},
		[]ort.Value{scoresTensor, boxesTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		scoresTensor.Destroy()
		boxesTensor.Destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:      session,
		inputTensor:  inputTensor,
		scoresTensor: scoresTensor,
		boxesTensor:  boxesTensor,
		threshold:    threshold,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// Detect runs face detection on a preprocessed image.
// imgData should be CHW format [3, inputH, inputW], normalized.
// origW/origH are the original image dimensions for coordinate scaling.
func (d *Detector) Detect(imgData []float32, origW, origH int) ([]Detection, error) {
	copy(d.inputTensor.GetData(), imgData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	scores := d.scoresTensor.GetData()
	boxes := d.boxesTensor.GetData()

	var detections []Detection
	for i := 0; i < priorCount; i++ {
		// scores layout: [background, face] per anchor
		conf := scores[i*2+1]
		if conf < d.threshold {
			continue
		}
		detections = append(detections, Detection{
			BBox: [4]float32{
				boxes[i*4+0] * float32(origW),
				boxes[i*4+1] * float32(origH),
				boxes[i*4+2] * float32(origW),
				boxes[i*4+3] * float32(origH),
			},
			Confidence: conf,
		})
	}

	return nms(detections, 0.4), nil
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.scoresTensor != nil {
		d.scoresTensor.Destroy()
	}
	if d.boxesTensor != nil {
		d.boxesTensor.Destroy()
	}
}

// nms applies greedy non-maximum suppression, keeping the highest
// confidence box among overlapping candidates.
func nms(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	var kept []Detection
	suppressed := make([]bool, len(detections))
	for i := range detections {
		if suppressed[i] {
			continue
		}
		kept = append(kept, detections[i])
		for j := i + 1; j < len(detections); j++ {
			if !suppressed[j] && iou(detections[i].BBox, detections[j].BBox) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	x1 := max32(a[0], b[0])
	y1 := max32(a[1], b[1])
	x2 := min32(a[2], b[2])
	y2 := min32(a[3], b[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	return inter / (areaA + areaB - inter)
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
