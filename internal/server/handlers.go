package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/memorymate/companion/internal/apperrors"
	"github.com/memorymate/companion/internal/chat"
	"github.com/memorymate/companion/internal/image"
	"github.com/memorymate/companion/internal/profile"
)

// profileRequest is the wire form of a profile. Age is decoded as a
// raw number so fractional values are rejected before they reach the
// typed domain.
type profileRequest struct {
	Name   string     `json:"name"`
	Age    *float64   `json:"age"`
	Gender string     `json:"gender"`
	Image  *image.Ref `json:"image,omitempty"`
}

func (r profileRequest) toData() (profile.Data, error) {
	if r.Age == nil {
		return profile.Data{}, apperrors.NewInvalidArgument("age is required")
	}
	if *r.Age != float64(int(*r.Age)) {
		return profile.Data{}, apperrors.NewInvalidArgument("given profile data has an invalid age: %v", *r.Age)
	}
	return profile.Data{
		Name:   r.Name,
		Age:    int(*r.Age),
		Gender: profile.Gender(r.Gender),
		Image:  r.Image,
	}, nil
}

func profileKind(r *http.Request) (profile.Kind, error) {
	kind := profile.Kind(chi.URLParam(r, "kind"))
	switch kind {
	case profile.User, profile.Agent:
		return kind, nil
	}
	return "", apperrors.NewInvalidArgument("unknown profile kind: %s", kind)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	kind, err := profileKind(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var request profileRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, apperrors.NewInvalidArgument("invalid profile payload: %v", err))
		return
	}

	data, err := request.toData()
	if err != nil {
		s.writeError(w, err)
		return
	}

	created, err := s.app.Profiles.Create(r.Context(), kind, data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	kind, err := profileKind(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data, err := s.app.Profiles.Get(r.Context(), kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	kind, err := profileKind(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var request profileRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, apperrors.NewInvalidArgument("invalid profile payload: %v", err))
		return
	}

	data, err := request.toData()
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.app.Profiles.Update(r.Context(), kind, data); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

// sendMessageRequest carries the user's text and any gallery images as
// base64 payloads.
type sendMessageRequest struct {
	Text   string `json:"text"`
	Images []struct {
		image.Ref
		Data string `json:"data"`
	} `json:"images"`
}

type sendMessageResponse struct {
	Reply     chat.Message `json:"reply"`
	OfferQuiz bool         `json:"offerQuiz"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var request sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, apperrors.NewInvalidArgument("invalid message payload: %v", err))
		return
	}

	attachments := make([]chat.Attachment, 0, len(request.Images))
	for _, img := range request.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			s.writeError(w, apperrors.NewInvalidArgument("image payload is not valid base64: %v", err))
			return
		}
		attachments = append(attachments, chat.Attachment{Ref: img.Ref, Data: data})
	}

	session, err := s.app.Session(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	reply, err := session.SendMessage(r.Context(), request.Text, attachments)
	if err != nil {
		s.writeError(w, err)
		return
	}

	offerQuiz, err := s.app.ShouldOfferQuiz(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sendMessageResponse{Reply: reply, OfferQuiz: offerQuiz})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	session, err := s.app.Session(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	history, err := session.History(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	session, err := s.app.Session(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := session.DeleteHistory(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	questions, err := s.app.Quiz.Create(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, questions)
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	questions, err := s.app.Quiz.SavedQuiz(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, questions)
}

type answerRequest struct {
	Choice int `json:"choice"`
}

type answerResponse struct {
	Answer    int  `json:"answer"`
	IsCorrect bool `json:"isCorrect"`
}

func (s *Server) handleAnswerQuestion(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, apperrors.NewInvalidArgument("invalid question index: %s", chi.URLParam(r, "index")))
		return
	}

	var request answerRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, apperrors.NewInvalidArgument("invalid answer payload: %v", err))
		return
	}

	questions, err := s.app.Quiz.SavedQuiz(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if index < 0 || index >= len(questions) {
		s.writeError(w, apperrors.NewInvalidArgument("question index out of range: %d", index))
		return
	}

	question := questions[index]
	if err := question.SetAnswer(request.Choice); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.app.Quiz.Save(r.Context(), questions); err != nil {
		s.writeError(w, err)
		return
	}

	correct, err := question.IsCorrect()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answerResponse{Answer: request.Choice, IsCorrect: correct})
}
