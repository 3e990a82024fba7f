package model

// Company はJoblyに登録された企業を表す。
type Company struct {
	Handle       string
	Name         string
	Description  string
	NumEmployees int
	LogoURL      string
	Jobs         []Job
}

// Job は求人を表す。
type Job struct {
	ID            int
	Title         string
	Salary        int
	Equity        string
	CompanyHandle string
	CompanyName   string
}
