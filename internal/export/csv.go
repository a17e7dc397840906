package export

import (
	"bufio"
	"io"
	"strings"
)

// csvEscaper 换行折成空格，双引号写两次
var csvEscaper = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", `"`, `""`)

// WriteCSV 每个字段都加双引号，内部的双引号写成两个，行尾为 \n
func WriteCSV(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	if err := writeCSVLine(bw, Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writeCSVLine(bw, Record(r)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeCSVLine(bw *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := bw.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(`"` + csvEscaper.Replace(f) + `"`); err != nil {
			return err
		}
	}
	return bw.WriteByte('\n')
}
