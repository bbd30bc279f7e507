// Package record persists detected skeleton sequences so sessions can be
// replayed or exported.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mocap/skeleton"
)

var ErrUnknownSession = errors.New("unknown session")

// Session is one capture run.
type Session struct {
	gorm.Model
	UUID      string `gorm:"uniqueIndex;size:36"`
	StartedAt time.Time
	Width     int
	Height    int
	Facing    string
	Samples   []Sample
}

// Sample is one detected skeleton. Vectors are stored as JSON arrays.
type Sample struct {
	ID          uint `gorm:"primarykey"`
	SessionID   uint `gorm:"index"`
	Seq         uint64
	CapturedAt  time.Time
	Joints      string `gorm:"type:text"`
	Shift       string `gorm:"size:128"`
	Quaternions string `gorm:"type:text"`
}

// EncodeSample converts a detector sample to its stored form.
func EncodeSample(seq uint64, at time.Time, s *skeleton.JointSample) (Sample, error) {
	joints, shift, quats := s.Lists()
	jb, err := json.Marshal(joints)
	if err != nil {
		return Sample{}, err
	}
	sb, err := json.Marshal(shift)
	if err != nil {
		return Sample{}, err
	}
	qb, err := json.Marshal(quats)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Seq:         seq,
		CapturedAt:  at,
		Joints:      string(jb),
		Shift:       string(sb),
		Quaternions: string(qb),
	}, nil
}

// Decode is the inverse of EncodeSample.
func (s *Sample) Decode() (skeleton.JointSample, error) {
	var joints, quats [][]float32
	var shift []float32
	if err := json.Unmarshal([]byte(s.Joints), &joints); err != nil {
		return skeleton.JointSample{}, fmt.Errorf("sample %d joints: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(s.Shift), &shift); err != nil {
		return skeleton.JointSample{}, fmt.Errorf("sample %d shift: %w", s.ID, err)
	}
	if s.Quaternions != "" && s.Quaternions != "null" {
		if err := json.Unmarshal([]byte(s.Quaternions), &quats); err != nil {
			return skeleton.JointSample{}, fmt.Errorf("sample %d quaternions: %w", s.ID, err)
		}
	}
	return skeleton.FromDetection(joints, shift, quats)
}

// Store is the gorm backed recording database.
type Store struct {
	db *gorm.DB
}

// Open connects to MySQL with a DSN such as
// "user:pass@tcp(host:3306)/mocap?parseTime=true".
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open recording database: %w", err)
	}
	return NewStore(db)
}

// NewStore migrates the schema on an existing connection.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Session{}, &Sample{}); err != nil {
		return nil, fmt.Errorf("migrate recording schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewSession creates a session row with a fresh UUID.
func (s *Store) NewSession(width, height int, facing string) (*Session, error) {
	sess := &Session{
		UUID:      uuid.NewString(),
		StartedAt: time.Now(),
		Width:     width,
		Height:    height,
		Facing:    facing,
	}
	if err := s.db.Create(sess).Error; err != nil {
		return nil, err
	}
	return sess, nil
}

// AddSamples appends samples to a session.
func (s *Store) AddSamples(sessionID uint, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	for i := range samples {
		samples[i].SessionID = sessionID
	}
	return s.db.CreateInBatches(samples, 100).Error
}

// Sessions lists sessions, newest first.
func (s *Store) Sessions() ([]Session, error) {
	var out []Session
	err := s.db.Order("started_at desc").Find(&out).Error
	return out, err
}

// Samples loads a session's samples in capture order.
func (s *Store) Samples(sessionUUID string) ([]skeleton.JointSample, error) {
	var sess Session
	err := s.db.Where("uuid = ?", sessionUUID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownSession, sessionUUID)
	} else if err != nil {
		return nil, err
	}

	var rows []Sample
	if err := s.db.Where("session_id = ?", sess.ID).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]skeleton.JointSample, 0, len(rows))
	for i := range rows {
		js, err := rows[i].Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, js)
	}
	return out, nil
}

// DB exposes the connection for other tables sharing the database.
func (s *Store) DB() *gorm.DB {
	return s.db
}
