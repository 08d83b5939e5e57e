// analyses.go
//
// EagleView, a vision assistant for seniors and the caregivers who look after them
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of eagleview.
// eagleview is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// eagleview is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with eagleview.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/capture"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/localnerve/eagleview/internal/utils"
	"github.com/localnerve/eagleview/internal/vision"
	"go.uber.org/zap"
)

// AnalysisHandler runs captures through the vision model and speaks the result
type AnalysisHandler struct {
	Log *zap.Logger
}

// AnalysisRequest is a JSON capture. Image may be a data URL or bare base64.
type AnalysisRequest struct {
	Type  models.AnalysisType `json:"type"`
	Image string              `json:"image"`
}

// AnalysisResponse is the recorded result and the text read aloud for it
type AnalysisResponse struct {
	Result    models.AnalysisResult `json:"result"`
	Narration string                `json:"narration"`
}

// QuestionRequest is a follow-up question about a recorded analysis
type QuestionRequest struct {
	Question string `json:"question"`
}

// QuestionResponse is the model's answer, also read aloud
type QuestionResponse struct {
	Answer string `json:"answer"`
}

// CreateAnalysis handles POST /api/analyses
// @Summary Analyze a picture
// @Description Accepts a JSON data URL or a multipart "image" file with a "type" field.
// @Description The picture is normalized to JPEG, analyzed for the active senior, recorded and read aloud.
// @Tags Analyses
// @Accept json,mpfd
// @Produce json
// @Param request body AnalysisRequest false "JSON capture"
// @Success 201 {object} AnalysisResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 415 {object} utils.ErrorResponseStruct
// @Failure 429 {object} utils.ErrorResponseStruct
// @Failure 502 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /analyses [post]
func (h *AnalysisHandler) CreateAnalysis(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	capturer := capture.New(0)
	var kind models.AnalysisType
	var image string

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		kind = models.AnalysisType(strings.ToUpper(c.FormValue("type")))
		file, err := c.FormFile("image")
		if err != nil {
			return badRequest("An image file is required.")
		}
		if file.Size > capture.MaxUploadBytes {
			return capture.ErrTooLarge
		}
		f, err := file.Open()
		if err != nil {
			return badRequest("The image file could not be read.")
		}
		defer f.Close()
		if !kind.Valid() {
			return badRequest("type must be PILLBOX, FINE_PRINT or DOCUMENT.")
		}
		if image, err = capturer.FromReader(ctx, f); err != nil {
			return err
		}
	} else {
		var req AnalysisRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		kind = models.AnalysisType(strings.ToUpper(string(req.Type)))
		if !kind.Valid() {
			return badRequest("type must be PILLBOX, FINE_PRINT or DOCUMENT.")
		}
		if blank(req.Image) {
			return badRequest("An image is required.")
		}
		if image, err = capturer.FromDataURL(ctx, req.Image); err != nil {
			return err
		}
	}

	result, err := core.Analyze(ctx, image, kind)
	if err != nil {
		h.Log.Info("analysis failed", zap.String("type", string(kind)), zap.Error(err))
		return err
	}

	narration := vision.Narrate(result)
	core.Say(narration)
	return utils.SuccessResponse(c, AnalysisResponse{Result: result, Narration: narration}, fiber.StatusCreated)
}

// AskQuestion handles POST /api/analyses/:id/questions
// @Summary Ask about an analysis
// @Tags Analyses
// @Accept json
// @Produce json
// @Param id path string true "Analysis ID"
// @Param request body QuestionRequest true "Question"
// @Success 200 {object} QuestionResponse
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 502 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /analyses/{id}/questions [post]
func (h *AnalysisHandler) AskQuestion(c *fiber.Ctx) error {
	var req QuestionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if blank(req.Question) {
		return badRequest("A question is required.")
	}
	core, err := coreOf(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	answer, err := core.Ask(ctx, c.Params("id"), req.Question)
	if err != nil {
		return err
	}
	core.Say(answer)
	return utils.SuccessResponse(c, QuestionResponse{Answer: answer}, fiber.StatusOK)
}
