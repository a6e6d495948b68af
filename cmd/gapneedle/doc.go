/*Command gapneedle closes gaps in genome assemblies by hand: it fetches
  sequence slices through FASTA indexes, inspects minimap2 alignments, maps
  query positions onto the target, and stitches chosen segments into a new
  sequence.

  Usage:

    gapneedle faidx asm.fa patch.fa
    gapneedle fetch asm.fa ctg1:1000-2000 ctg2
    gapneedle align -t asm.fa -tseq ctg1 -q patch.fa -qseq p7 -rc
    gapneedle suggest x.paf p7 ctg1
    gapneedle map x.paf p7 ctg1 1500
    gapneedle stitch -t asm.fa -q patch.fa -o out.fa t:ctg1:0-1000 q:p7:20-500:rc
    gapneedle stitch -resume out.fa.session.json -o out2.fa

  Segments have the form source:name:start-end[:rc], where source is "t",
  "q", or a key given with -x key=path.  Coordinates are 0-based and
  half-open.
*/
package main
