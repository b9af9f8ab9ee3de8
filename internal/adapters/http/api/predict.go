package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/pkg/logger"
)

// maxPredictBytes caps a single patient record.
const maxPredictBytes = 64 << 10

// patientSchema accepts camelCase or snake_case keys. Numeric fields may be
// strings so spreadsheet exports can be posted unchanged.
const patientSchema = `{
  "type": "object",
  "minProperties": 1,
  "definitions": {
    "num": {"type": ["number", "string", "null"]},
    "text": {"type": ["string", "null"], "maxLength": 64}
  },
  "properties": {
    "patientId": {"type": ["string", "null"], "maxLength": 128},
    "patient_id": {"type": ["string", "null"], "maxLength": 128},
    "age": {"$ref": "#/definitions/num"},
    "gender": {"$ref": "#/definitions/text"},
    "tumorStage": {"$ref": "#/definitions/text"},
    "tumorSize": {"$ref": "#/definitions/num"},
    "lymphNodes": {"$ref": "#/definitions/num"},
    "histologicalGrade": {"$ref": "#/definitions/num"},
    "erStatus": {"$ref": "#/definitions/text"},
    "prStatus": {"$ref": "#/definitions/text"},
    "her2Status": {"$ref": "#/definitions/text"},
    "treatmentHistory": {"$ref": "#/definitions/text"},
    "tp53Expression": {"$ref": "#/definitions/num"},
    "brca1Expression": {"$ref": "#/definitions/num"},
    "methylationScore": {"$ref": "#/definitions/num"},
    "mirnaProfile": {"$ref": "#/definitions/num"}
  },
  "additionalProperties": {"type": ["number", "string", "boolean", "null"]}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func patientRecordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("patient.json", strings.NewReader(patientSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("patient.json")
	})
	return schema, schemaErr
}

// PredictDependencies defines the interface for single-patient prediction.
type PredictDependencies interface {
	Predict(ctx context.Context, record map[string]interface{}) (*service.Prediction, error)
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps   PredictDependencies
	logger logger.Logger
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps PredictDependencies) *PredictHandler {
	return &PredictHandler{deps: deps, logger: logger.Get().Named("api.predict")}
}

// HandlePredict handles POST /api/predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPredictBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(ctx, w, WrapKind(op, ErrTooLarge, err))
			return
		}
		fail(ctx, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if !gjson.ValidBytes(body) {
		fail(ctx, w, WrapKind(op, ErrBadRequest, errors.New("body is not valid JSON")))
		return
	}
	patientID := gjson.GetBytes(body, "patientId").String()
	if patientID == "" {
		patientID = gjson.GetBytes(body, "patient_id").String()
	}

	var record map[string]interface{}
	if err := json.Unmarshal(body, &record); err != nil {
		fail(ctx, w, WrapKind(op, ErrBadRequest, fmt.Errorf("body must be a JSON object: %w", err)))
		return
	}
	sch, err := patientRecordSchema()
	if err != nil {
		fail(ctx, w, Wrap(op, err))
		return
	}
	if err := sch.Validate(record); err != nil {
		h.logger.Debug(ctx, "record rejected", logger.String("patient_id", patientID), logger.Error(err))
		fail(ctx, w, WrapKind(op, ErrBadRequest, err))
		return
	}

	p, err := h.deps.Predict(ctx, record)
	if err != nil {
		h.logger.Warn(ctx, "prediction failed", logger.String("patient_id", patientID), logger.Error(err))
		fail(ctx, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}
