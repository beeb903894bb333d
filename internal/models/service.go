package models

import "time"

type Service struct {
	ID         int64     `json:"id" yaml:"id" bson:"_id"`
	BusinessID int64     `json:"business_id" yaml:"-" bson:"business_id"`
	Name       string    `json:"name" yaml:"name" bson:"name"`
	Duration   string    `json:"duration" yaml:"duration" bson:"duration"`
	Price      string    `json:"price" yaml:"price" bson:"price"`
	IsActive   bool      `json:"is_active" yaml:"is_active" bson:"is_active"`
	SortOrder  int64     `json:"sort_order" yaml:"sort_order" bson:"sort_order"`
	CreatedAt  time.Time `json:"created_at" yaml:"-" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-" bson:"updated_at"`
}

type Client struct {
	ID         int64     `json:"id" bson:"_id"`
	BusinessID int64     `json:"business_id" bson:"business_id"`
	Name       string    `json:"name" bson:"name"`
	Phone      string    `json:"phone" bson:"phone"`
	Email      string    `json:"email" bson:"email"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}
